// Package telegram is the transport: it long-polls the Bot API, turns raw
// updates into router updates (downloading voice/photo payloads first), and
// renders the router's presentation-neutral replies back into Telegram
// messages and keyboards.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/testbooklabs/tutorbot/router"
)

const (
	pollTimeoutSeconds = 60
	workerQueueSize    = 16
	maxDownloadBytes   = 20 << 20 // Bot API file download limit
)

type Bot struct {
	api    *tgbotapi.BotAPI
	router *router.Router
	logger *slog.Logger
	http   *http.Client

	mu      sync.Mutex
	workers map[int64]chan tgbotapi.Update
	wg      sync.WaitGroup
}

func New(token string, r *router.Router, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("authorized on telegram", "username", api.Self.UserName)
	return &Bot{
		api:     api,
		router:  r,
		logger:  logger,
		http:    &http.Client{Timeout: 60 * time.Second},
		workers: map[int64]chan tgbotapi.Update{},
	}, nil
}

// Run polls for updates until ctx is canceled. Updates for the same chat
// are processed sequentially by a per-chat worker; different chats run in
// parallel, so one user's slow external call never blocks another's.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.closeWorkers()
			b.wg.Wait()
			return nil
		case upd, ok := <-updates:
			if !ok {
				b.closeWorkers()
				b.wg.Wait()
				return nil
			}
			b.dispatch(ctx, upd)
		}
	}
}

func chatIDOf(upd tgbotapi.Update) (int64, bool) {
	switch {
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil:
		return upd.CallbackQuery.Message.Chat.ID, true
	case upd.Message != nil:
		return upd.Message.Chat.ID, true
	default:
		return 0, false
	}
}

func (b *Bot) dispatch(ctx context.Context, upd tgbotapi.Update) {
	chatID, ok := chatIDOf(upd)
	if !ok {
		return
	}

	b.mu.Lock()
	jobs, ok := b.workers[chatID]
	if !ok {
		jobs = make(chan tgbotapi.Update, workerQueueSize)
		b.workers[chatID] = jobs
		b.wg.Add(1)
		go b.worker(ctx, jobs)
	}
	b.mu.Unlock()

	select {
	case jobs <- upd:
	default:
		// A full queue means the user is flooding; dropping here keeps the
		// poll loop responsive for everyone else.
		b.logger.Warn("dropping update, chat queue full", "chat_id", chatID)
	}
}

func (b *Bot) closeWorkers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for chatID, jobs := range b.workers {
		close(jobs)
		delete(b.workers, chatID)
	}
}

func (b *Bot) worker(ctx context.Context, jobs <-chan tgbotapi.Update) {
	defer b.wg.Done()
	for upd := range jobs {
		b.process(ctx, upd)
	}
}

func (b *Bot) process(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic while processing update", "panic", rec)
		}
	}()

	u, callbackID, ok := b.convert(ctx, upd)
	if !ok {
		return
	}

	resp := b.router.Handle(ctx, u)

	if callbackID != "" {
		ack := tgbotapi.NewCallback(callbackID, resp.Ack)
		if _, err := b.api.Request(ack); err != nil {
			b.logger.Error("answer callback failed", "err", err)
		}
	}
	for _, m := range resp.Messages {
		b.send(m)
	}
}

// convert maps a raw update to the router's shape. Voice and photo payloads
// are downloaded here so the router only ever sees bytes.
func (b *Bot) convert(ctx context.Context, upd tgbotapi.Update) (router.Update, string, bool) {
	if cb := upd.CallbackQuery; cb != nil && cb.Message != nil {
		return router.Update{
			UserID:       strconv.FormatInt(cb.From.ID, 10),
			ChatID:       cb.Message.Chat.ID,
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}, cb.ID, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil {
		return router.Update{}, "", false
	}
	u := router.Update{
		UserID: strconv.FormatInt(msg.From.ID, 10),
		ChatID: msg.Chat.ID,
	}

	switch {
	case msg.Voice != nil:
		audio, err := b.download(ctx, msg.Voice.FileID)
		if err != nil {
			b.logger.Error("voice download failed", "err", err)
			b.send(router.Message{ChatID: msg.Chat.ID, Text: "Voice error: could not fetch audio."})
			return router.Update{}, "", false
		}
		u.Voice = audio
	case len(msg.Photo) > 0:
		// The last photo size is the largest.
		image, err := b.download(ctx, msg.Photo[len(msg.Photo)-1].FileID)
		if err != nil {
			b.logger.Error("photo download failed", "err", err)
			b.send(router.Message{ChatID: msg.Chat.ID, Text: "Image error: could not fetch photo."})
			return router.Update{}, "", false
		}
		u.Photo = image
	case msg.Text != "":
		u.Text = msg.Text
	default:
		return router.Update{}, "", false
	}
	return u, "", true
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: http %d", fileID, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func (b *Bot) send(m router.Message) {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	if m.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(m.Inline) > 0 {
		msg.ReplyMarkup = inlineKeyboard(m.Inline)
	} else if len(m.Menu) > 0 {
		msg.ReplyMarkup = menuKeyboard(m.Menu)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send message failed", "chat_id", m.ChatID, "err", err)
	}
}

func inlineKeyboard(rows [][]router.Button) tgbotapi.InlineKeyboardMarkup {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		out = append(out, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func menuKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	var out [][]tgbotapi.KeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.KeyboardButton
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		out = append(out, buttons)
	}
	kb := tgbotapi.NewReplyKeyboard(out...)
	kb.ResizeKeyboard = true
	return kb
}
