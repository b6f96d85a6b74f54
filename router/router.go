// Package router classifies every inbound update and dispatches it to
// exactly one handler. All stateful work goes through the store and quiz
// engine; all content work goes through the external gateway. Handler
// failures stop here: each one becomes a single user-visible message, never
// a crash and never a dropped update loop.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/testbooklabs/tutorbot/action"
	"github.com/testbooklabs/tutorbot/book"
	"github.com/testbooklabs/tutorbot/gateway"
	"github.com/testbooklabs/tutorbot/quiz"
	"github.com/testbooklabs/tutorbot/store"
)

const (
	randomQuizSize  = 5
	defaultTimeout  = 60 * time.Second
	recentListLimit = 10
)

// Update is one inbound event, already stripped of transport details.
// Exactly one content field is meaningful: CallbackData, Voice, Photo, or
// Text, checked in that order.
type Update struct {
	UserID       string
	ChatID       int64
	Text         string
	CallbackID   string
	CallbackData string
	Voice        []byte
	Photo        []byte
}

// Button is a presentation-neutral inline button; the transport renders it.
type Button struct {
	Label string
	Data  string
}

type Message struct {
	ChatID   int64
	Text     string
	Markdown bool
	Inline   [][]Button
	Menu     [][]string
}

// Response is everything one update produces: outbound messages plus, for
// button taps, the callback acknowledgment text ("" acks silently).
type Response struct {
	Messages []Message
	Ack      string
}

type Router struct {
	store       *store.Store
	engine      *quiz.Engine
	gateway     gateway.Gateway
	book        *book.Book
	logger      *slog.Logger
	callTimeout time.Duration
}

func New(st *store.Store, engine *quiz.Engine, gw gateway.Gateway, b *book.Book, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:       st,
		engine:      engine,
		gateway:     gw,
		book:        b,
		logger:      logger,
		callTimeout: defaultTimeout,
	}
}

// Handle processes one update. It always returns a usable Response; errors
// are logged and folded into user-visible text.
func (r *Router) Handle(ctx context.Context, u Update) Response {
	logger := r.logger.With("update_id", uuid.NewString(), "user_id", u.UserID)
	if err := r.store.Ensure(u.UserID); err != nil {
		logger.Error("ensure user failed", "err", err)
	}

	switch {
	case u.CallbackData != "":
		return r.handleCallback(ctx, u, logger)
	case len(u.Voice) > 0:
		return r.handleVoice(ctx, u, logger)
	case len(u.Photo) > 0:
		return r.handlePhoto(ctx, u, logger)
	default:
		return r.handleText(ctx, u, logger)
	}
}

// --- text, commands, and menu aliases ---

func (r *Router) handleText(ctx context.Context, u Update, logger *slog.Logger) Response {
	text := strings.TrimSpace(u.Text)
	if err := r.store.AppendLog(u.UserID, "You: "+text); err != nil {
		logger.Error("append log failed", "err", err)
	}

	cmd, arg := splitCommand(text)
	switch cmd {
	case "/start", "start", "/help", "help":
		return r.mainMenu(u.ChatID)
	case "/chapters", "📚 chapters":
		return r.chapterList(u.ChatID)
	case "/quiz":
		return r.quizMenu(u.ChatID)
	case "/dailyquiz", "❓ quiz":
		return r.startDailyQuiz(u, logger)
	case "/addnote":
		return r.addNote(u, arg, logger)
	case "/notes":
		return r.listNotes(u, logger)
	case "/logs", "/mylogs", "📜 my logs":
		return r.listLogs(u, logger)
	case "/translate":
		return r.translate(ctx, u, arg, logger)
	case "🌐 translate":
		return reply(u.ChatID, "Usage: /translate your text")
	case "/lang":
		return r.setLanguage(u, arg, logger)
	case "🎙 voice":
		return reply(u.ChatID, "Send me a voice message and I will transcribe and answer it.")
	case "🖼 image solve":
		return reply(u.ChatID, "Send me a photo of a question and I will read and solve it.")
	}

	// Default path: forward to the completion service.
	return Response{Messages: r.aiReply(ctx, u, text, logger)}
}

// splitCommand lowercases the head token so commands and menu labels match
// case-insensitively, keeping the argument as typed.
func splitCommand(text string) (string, string) {
	head, arg, found := strings.Cut(text, " ")
	lowered := strings.ToLower(head)
	if !found {
		// Menu labels contain spaces; match the whole line too.
		return strings.ToLower(text), ""
	}
	whole := strings.ToLower(text)
	switch whole {
	case "📚 chapters", "❓ quiz", "🎙 voice", "🖼 image solve", "🌐 translate", "📜 my logs":
		return whole, ""
	}
	return lowered, strings.TrimSpace(arg)
}

func (r *Router) mainMenu(chatID int64) Response {
	return Response{Messages: []Message{{
		ChatID: chatID,
		Text:   "👋 Namaste! Main TestBook Pro Bot hoon.\nChoose option:",
		Menu: [][]string{
			{"📚 Chapters", "❓ Quiz"},
			{"🎙 Voice", "🖼 Image Solve"},
			{"🌐 Translate", "📜 My Logs"},
		},
	}}}
}

func (r *Router) chapterList(chatID int64) Response {
	var rows [][]Button
	for _, ch := range r.book.Chapters {
		rows = append(rows, []Button{{Label: ch.Title, Data: action.Encode(action.Read(ch.ID))}})
	}
	return Response{Messages: []Message{{ChatID: chatID, Text: "📚 Chapters:", Inline: rows}}}
}

func (r *Router) quizMenu(chatID int64) Response {
	var rows [][]Button
	for _, ch := range r.book.Chapters {
		rows = append(rows, []Button{{Label: ch.Title, Data: action.Encode(action.QuizStart(ch.ID))}})
	}
	return Response{Messages: []Message{{
		ChatID: chatID,
		Text:   "❓ Choose chapter quiz or /dailyquiz for random quiz",
		Inline: rows,
	}}}
}

func (r *Router) startDailyQuiz(u Update, logger *slog.Logger) Response {
	sess, err := r.engine.StartRandom(u.UserID, r.book.Bank, randomQuizSize)
	if err != nil {
		if errors.Is(err, quiz.ErrEmptyBank) {
			return reply(u.ChatID, "No quiz questions available.")
		}
		logger.Error("start random quiz failed", "err", err)
		return reply(u.ChatID, "Error occurred. Please try again.")
	}
	return Response{Messages: []Message{r.dailyQuestion(u.ChatID, u.UserID, 0, sess.Questions[0])}}
}

func (r *Router) dailyQuestion(chatID int64, userID string, index int, q book.Question) Message {
	var rows [][]Button
	for i, opt := range q.Options {
		rows = append(rows, []Button{{
			Label: optionLabel(i, opt),
			Data:  action.Encode(action.DailyAnswer(userID, index, i)),
		}})
	}
	return Message{
		ChatID: chatID,
		Text:   fmt.Sprintf("Q%d: %s", index+1, q.Text),
		Inline: rows,
	}
}

func optionLabel(i int, opt string) string {
	return fmt.Sprintf("%c. %s", rune('A'+i), opt)
}

func (r *Router) addNote(u Update, arg string, logger *slog.Logger) Response {
	if arg == "" {
		return reply(u.ChatID, "Usage: /addnote your note")
	}
	if err := r.store.AppendNote(u.UserID, arg); err != nil {
		logger.Error("append note failed", "err", err)
		return reply(u.ChatID, "Error occurred. Please try again.")
	}
	return reply(u.ChatID, "Note saved.")
}

func (r *Router) listNotes(u Update, logger *slog.Logger) Response {
	rec, err := r.store.Get(u.UserID)
	if err != nil {
		logger.Error("get user failed", "err", err)
		return reply(u.ChatID, "Error occurred. Please try again.")
	}
	if len(rec.Notes) == 0 {
		return reply(u.ChatID, "No notes yet.")
	}
	notes := rec.Notes
	if len(notes) > recentListLimit {
		notes = notes[len(notes)-recentListLimit:]
	}
	var b strings.Builder
	b.WriteString("🗒 Your notes:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "- %s\n", n.Text)
	}
	return reply(u.ChatID, strings.TrimRight(b.String(), "\n"))
}

func (r *Router) listLogs(u Update, logger *slog.Logger) Response {
	rec, err := r.store.Get(u.UserID)
	if err != nil {
		logger.Error("get user failed", "err", err)
		return reply(u.ChatID, "Error occurred. Please try again.")
	}
	if len(rec.Logs) == 0 {
		return reply(u.ChatID, "🧾 Last logs:\nNo logs yet.")
	}
	logs := rec.Logs
	if len(logs) > recentListLimit {
		logs = logs[len(logs)-recentListLimit:]
	}
	var b strings.Builder
	b.WriteString("🧾 Last logs:\n")
	for _, l := range logs {
		fmt.Fprintf(&b, "- %s\n", l.Text)
	}
	return reply(u.ChatID, strings.TrimRight(b.String(), "\n"))
}

func (r *Router) translate(ctx context.Context, u Update, arg string, logger *slog.Logger) Response {
	if arg == "" {
		return reply(u.ChatID, "Usage: /translate your text")
	}
	target := "en"
	if rec, err := r.store.Get(u.UserID); err == nil && rec.Lang != "" && rec.Lang != "auto" {
		target = rec.Lang
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	out, err := r.gateway.Translate(callCtx, arg, target)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return reply(u.ChatID, "Translation not available on server.")
		}
		logger.Error("translate failed", "err", err)
		return reply(u.ChatID, "Translate error: "+shortError(err))
	}
	return reply(u.ChatID, "Translated:\n"+out)
}

func (r *Router) setLanguage(u Update, arg string, logger *slog.Logger) Response {
	if arg == "" {
		lang := "auto"
		if rec, err := r.store.Get(u.UserID); err == nil {
			lang = rec.Lang
		}
		return reply(u.ChatID, fmt.Sprintf("Current language: %s\nUsage: /lang hi", lang))
	}
	if err := r.store.SetLanguage(u.UserID, strings.ToLower(arg)); err != nil {
		logger.Error("set language failed", "err", err)
		return reply(u.ChatID, "Error occurred. Please try again.")
	}
	return reply(u.ChatID, "Language set to "+strings.ToLower(arg)+".")
}

// --- callbacks ---

func (r *Router) handleCallback(ctx context.Context, u Update, logger *slog.Logger) Response {
	a, err := action.Decode(u.CallbackData)
	if err != nil {
		logger.Warn("undecodable callback payload", "payload", u.CallbackData)
		return Response{Ack: "Unknown action."}
	}

	switch a.Kind {
	case action.KindRead:
		return r.readChapter(u, a)
	case action.KindQuizStart:
		return r.startChapterQuiz(u, a)
	case action.KindQuizAnswer:
		return r.answerChapterQuiz(u, a, logger)
	case action.KindDailyAnswer:
		return r.answerDailyQuiz(u, a, logger)
	default:
		return Response{Ack: "Unknown action."}
	}
}

func (r *Router) readChapter(u Update, a action.Action) Response {
	ch, ok := r.book.Chapter(a.ChapterID)
	if !ok {
		return Response{Ack: "Not found."}
	}
	return Response{Messages: []Message{{
		ChatID:   u.ChatID,
		Text:     fmt.Sprintf("*%s*\n\n%s", ch.Title, ch.Content),
		Markdown: true,
	}}}
}

// startChapterQuiz is deliberately session-less: a chapter quiz is a single
// question whose answer callback carries the full context, so there is
// nothing to store.
func (r *Router) startChapterQuiz(u Update, a action.Action) Response {
	ch, ok := r.book.Chapter(a.ChapterID)
	if !ok || len(ch.Quiz) == 0 {
		return Response{Ack: "Not found."}
	}
	q := ch.Quiz[0]
	var rows [][]Button
	for i, opt := range q.Options {
		rows = append(rows, []Button{{
			Label: optionLabel(i, opt),
			Data:  action.Encode(action.QuizAnswer(ch.ID, 0, i)),
		}})
	}
	return Response{Messages: []Message{{
		ChatID: u.ChatID,
		Text:   "❓ " + q.Text,
		Inline: rows,
	}}}
}

func (r *Router) answerChapterQuiz(u Update, a action.Action, logger *slog.Logger) Response {
	ch, ok := r.book.Chapter(a.ChapterID)
	if !ok || a.Question >= len(ch.Quiz) {
		return Response{Ack: "Not found."}
	}
	q := ch.Quiz[a.Question]
	correct := a.Option == q.Answer
	if err := r.store.AppendScore(u.UserID, ch.ID, correct); err != nil {
		logger.Error("append score failed", "err", err)
	}
	if correct {
		return Response{Messages: []Message{{ChatID: u.ChatID, Text: "✅ Correct!"}}}
	}
	return Response{Messages: []Message{{
		ChatID: u.ChatID,
		Text:   "❌ Wrong. Ans: " + q.Options[q.Answer],
	}}}
}

func (r *Router) answerDailyQuiz(u Update, a action.Action, logger *slog.Logger) Response {
	out, err := r.engine.SubmitAnswer(a.UserID, a.Question, a.Option)
	if err != nil {
		if errors.Is(err, quiz.ErrSessionNotFound) {
			return Response{Ack: "Quiz not found."}
		}
		logger.Error("submit answer failed", "err", err)
		return Response{Ack: "Error occurred."}
	}
	if out.Stale {
		return Response{Ack: "Answer already recorded."}
	}
	if out.Done {
		return Response{
			Ack: "Answer recorded.",
			Messages: []Message{{
				ChatID: u.ChatID,
				Text:   fmt.Sprintf("🏁 Quiz finished. Score: %d/%d", out.Score, out.Total),
			}},
		}
	}
	return Response{
		Ack:      "Answer recorded.",
		Messages: []Message{r.dailyQuestion(u.ChatID, a.UserID, out.NextIndex, *out.Next)},
	}
}

// --- voice and photo ---

func (r *Router) handleVoice(ctx context.Context, u Update, logger *slog.Logger) Response {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	text, err := r.gateway.Transcribe(callCtx, u.Voice)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return reply(u.ChatID, "Voice not available on server.")
		}
		logger.Error("transcribe failed", "err", err)
		return reply(u.ChatID, "Voice error: "+shortError(err))
	}

	if err := r.store.AppendLog(u.UserID, "Voice: "+text); err != nil {
		logger.Error("append log failed", "err", err)
	}
	messages := []Message{{ChatID: u.ChatID, Text: "🎧 Transcribed: " + text}}
	messages = append(messages, r.aiReply(ctx, u, text, logger)...)
	return Response{Messages: messages}
}

func (r *Router) handlePhoto(ctx context.Context, u Update, logger *slog.Logger) Response {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	extracted, err := r.gateway.ExtractText(callCtx, u.Photo)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return reply(u.ChatID, "OCR not available on server.")
		}
		logger.Error("ocr failed", "err", err)
		return reply(u.ChatID, "Image error: "+shortError(err))
	}
	if strings.TrimSpace(extracted) == "" {
		return reply(u.ChatID, "Could not extract text from image.")
	}

	if err := r.store.AppendLog(u.UserID, "Photo text: "+extracted); err != nil {
		logger.Error("append log failed", "err", err)
	}
	messages := []Message{{ChatID: u.ChatID, Text: "📝 Extracted text:\n" + extracted}}
	prompt := "Solve or explain the following question:\n\n" + extracted
	messages = append(messages, r.aiReply(ctx, u, prompt, logger)...)
	return Response{Messages: messages}
}

// --- shared AI path ---

func (r *Router) aiReply(ctx context.Context, u Update, prompt string, logger *slog.Logger) []Message {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	text, err := r.gateway.Complete(callCtx, prompt)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return []Message{{ChatID: u.ChatID, Text: "AI not configured on server."}}
		}
		logger.Error("completion failed", "err", err)
		return []Message{{ChatID: u.ChatID, Text: "AI error: " + shortError(err)}}
	}
	if err := r.store.AppendLog(u.UserID, "Bot: "+text); err != nil {
		logger.Error("append log failed", "err", err)
	}
	return []Message{{ChatID: u.ChatID, Text: text}}
}

func reply(chatID int64, text string) Response {
	return Response{Messages: []Message{{ChatID: chatID, Text: text}}}
}

// shortError keeps user-facing failure text to one line.
func shortError(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
