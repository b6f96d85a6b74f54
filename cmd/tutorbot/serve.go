package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/testbooklabs/tutorbot/book"
	"github.com/testbooklabs/tutorbot/gateway"
	"github.com/testbooklabs/tutorbot/keepalive"
	"github.com/testbooklabs/tutorbot/quiz"
	"github.com/testbooklabs/tutorbot/router"
	"github.com/testbooklabs/tutorbot/store"
	"github.com/testbooklabs/tutorbot/telegram"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: poll for updates and serve the keepalive endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().String("data-file", "", "Path of the user snapshot file.")
	cmd.Flags().String("book", "", "Path of the chapter/bank YAML file (embedded default when empty).")
	_ = viper.BindPFlag("tutorbot.data_file", cmd.Flags().Lookup("data-file"))
	_ = viper.BindPFlag("tutorbot.book_file", cmd.Flags().Lookup("book"))
	return cmd
}

func runServe(parent context.Context) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	token := strings.TrimSpace(viper.GetString("telegram.token"))
	if token == "" {
		return fmt.Errorf("telegram token is required (set TUTORBOT_TELEGRAM_TOKEN or BOT_TOKEN)")
	}

	b, err := book.Load(viper.GetString("tutorbot.book_file"))
	if err != nil {
		return err
	}

	st := store.Open(viper.GetString("tutorbot.data_file"), logger)
	engine := quiz.NewEngine(st)
	gw := buildGateway(logger)
	rt := router.New(st, engine, gw, b, logger)

	bot, err := telegram.New(token, rt, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ka := keepalive.New(keepaliveAddr(), logger)
	errCh := make(chan error, 2)
	go func() { errCh <- ka.Run(ctx) }()
	go func() { errCh <- bot.Run(ctx) }()

	logger.Info("tutorbot started", "version", Version)
	select {
	case <-ctx.Done():
		// Let both loops observe the cancellation.
		<-errCh
		<-errCh
		return nil
	case err := <-errCh:
		stop()
		<-errCh
		return err
	}
}

// buildGateway wires each external capability that is configured on this
// deployment; the rest stay nil and answer "not configured" at use time.
func buildGateway(logger *slog.Logger) gateway.Gateway {
	stack := &gateway.Stack{}

	if key := strings.TrimSpace(viper.GetString("openai.api_key")); key != "" {
		client := gateway.NewOpenAI(viper.GetString("openai.base_url"), key, viper.GetString("openai.model"))
		stack.Completer = client
		stack.Transcriber = client
		stack.Translator = client
	} else {
		logger.Info("openai key not set, AI features disabled")
	}

	if ocr, err := gateway.NewTesseractOCR(viper.GetString("ocr.binary")); err == nil {
		stack.TextExtractor = ocr
	} else if errors.Is(err, gateway.ErrNotConfigured) {
		logger.Info("tesseract not found, OCR disabled")
	}

	return stack
}

func keepaliveAddr() string {
	if addr := strings.TrimSpace(viper.GetString("keepalive.addr")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + port
	}
	return ":10000"
}
