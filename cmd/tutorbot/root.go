package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "TUTORBOT"

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tutorbot",
		Short: "TestBook tutor bot for Telegram",
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))

	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (defaults to info).")
	cmd.PersistentFlags().String("log-format", "text", "Logging format: text|json.")
	cmd.PersistentFlags().Bool("log-add-source", false, "Include source file:line in logs.")

	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.add_source", cmd.PersistentFlags().Lookup("log-add-source"))

	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func initConfig() {
	// A local .env never overwrites real environment variables.
	_ = godotenv.Load()

	viper.SetDefault("tutorbot.data_file", "userdata.json")
	viper.SetDefault("tutorbot.book_file", "")
	viper.SetDefault("keepalive.addr", "")
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("openai.model", "")
	viper.SetDefault("ocr.binary", "tesseract")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// Legacy names kept from the original deployment.
	_ = viper.BindEnv("telegram.token", "TUTORBOT_TELEGRAM_TOKEN", "BOT_TOKEN")
	_ = viper.BindEnv("openai.api_key", "TUTORBOT_OPENAI_API_KEY", "OPENAI_API_KEY")

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
	}
}
