// Package telegram serves the chat service to allowlisted Telegram users.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ai-datalab/internal/auth"
	"ai-datalab/internal/chat"
	"ai-datalab/internal/events"
	"ai-datalab/internal/logging"
)

const (
	resetCmd = "reset_ctx"
	// Telegram rejects messages longer than 4096 characters.
	maxMessageRunes = 4000
)

type Chatter interface {
	Handle(ctx context.Context, sessionID, message string) (chat.Reply, error)
}

type Sessions interface {
	Reset(sessionID string)
}

type Stream interface {
	Ready(sessionID string) <-chan struct{}
	Drain(sessionID string) []events.Event
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	authSvc  *auth.Service
	chat     Chatter
	sessions Sessions
	stream   Stream
	log      *zap.Logger
}

func New(botToken string, authSvc *auth.Service, chatter Chatter, sessions Sessions, stream Stream, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &Bot{
		api:      api,
		s:        api,
		authSvc:  authSvc,
		chat:     chatter,
		sessions: sessions,
		stream:   stream,
		log:      logging.OrNop(logger).Named("telegram"),
	}, nil
}

// SessionID is the chat session used for a Telegram chat.
func SessionID(chatID int64) string {
	return fmt.Sprintf("telegram-%d", chatID)
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			switch {
			case update.Message != nil:
				b.handleIncomingMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				b.handleCallback(update.CallbackQuery)
			}
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		b.log.Warn("unauthorized access attempt", zap.Int64("user_id", msg.From.ID), zap.String("username", msg.From.UserName))
		b.sendMessage(msg.Chat.ID, "Sorry, you are not allowed to use this bot.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.sendMessage(msg.Chat.ID, "Send me a question about your data.")
		return
	}

	sessionID := SessionID(msg.Chat.ID)
	b.log.Info("incoming message", zap.Int64("user_id", msg.From.ID), zap.String("session_id", sessionID))

	stop := b.trackProgress(ctx, msg.Chat.ID, sessionID)
	reply, err := b.chat.Handle(ctx, sessionID, text)
	stop()
	if err != nil {
		b.log.Error("failed to handle message", zap.String("session_id", sessionID), zap.Error(err))
		b.sendMessage(msg.Chat.ID, "Sorry, something went wrong while analyzing your data.")
		return
	}

	chunks := splitMessage(reply.Response, maxMessageRunes)
	for i, chunk := range chunks {
		out := tgbotapi.NewMessage(msg.Chat.ID, chunk)
		if i == len(chunks)-1 {
			out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("Reset conversation", resetCmd),
				),
			)
		}
		if _, err := b.s.Send(out); err != nil {
			b.log.Warn("failed to send reply", zap.Error(err))
		}
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.sendMessage(msg.Chat.ID, "Ask me about the CSV files in the data directory, e.g. \"summarize sales.csv\" or \"filter sales.csv by region North\".")
	case "reset":
		b.sessions.Reset(SessionID(msg.Chat.ID))
		b.sendMessage(msg.Chat.ID, "Conversation reset.")
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command.")
	}
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if cb.Data != resetCmd || cb.Message == nil {
		return
	}
	if cb.From == nil || !b.authSvc.IsAllowed(cb.From.ID) {
		return
	}
	b.sessions.Reset(SessionID(cb.Message.Chat.ID))
	b.sendMessage(cb.Message.Chat.ID, "Conversation reset.")
}

// trackProgress posts a progress message and keeps it updated from the
// session's events until the returned stop function is called.
func (b *Bot) trackProgress(ctx context.Context, chatID int64, sessionID string) (stop func()) {
	sent, err := b.s.Send(tgbotapi.NewMessage(chatID, progressHeader))
	if err != nil || b.stream == nil {
		if err != nil {
			b.log.Warn("failed to send progress message", zap.Error(err))
		}
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	tracker := NewProgressTracker(b.s, chatID, sent.MessageID, b.log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.Follow(ctx, b.stream, sessionID)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.s.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("failed to send message", zap.Error(err))
	}
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks. Empty text yields one empty chunk.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
