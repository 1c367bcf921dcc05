package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"ai-datalab/internal/events"
)

const progressHeader = "🔄 Analyzing your request..."

// ProgressTracker mirrors a session's progress events into one Telegram
// message, editing it as steps complete.
type ProgressTracker struct {
	s         sender
	chatID    int64
	messageID int
	log       *zap.Logger

	mu    sync.Mutex
	steps []string
	done  bool
}

func NewProgressTracker(s sender, chatID int64, messageID int, logger *zap.Logger) *ProgressTracker {
	return &ProgressTracker{s: s, chatID: chatID, messageID: messageID, log: logger}
}

// Follow applies events from the stream until ctx is done. Events still
// queued when ctx ends are applied before returning.
func (pt *ProgressTracker) Follow(ctx context.Context, stream Stream, sessionID string) {
	for {
		select {
		case <-ctx.Done():
			pt.drain(stream, sessionID)
			return
		case <-stream.Ready(sessionID):
			pt.drain(stream, sessionID)
		}
	}
}

func (pt *ProgressTracker) drain(stream Stream, sessionID string) {
	if evs := stream.Drain(sessionID); len(evs) > 0 {
		pt.Apply(evs...)
	}
}

// Apply records the events and edits the progress message once.
func (pt *ProgressTracker) Apply(evs ...events.Event) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	for _, ev := range evs {
		msg, _ := ev.Payload["message"].(string)
		switch ev.Kind {
		case events.KindStatus:
			pt.steps = append(pt.steps, "▫️ "+msg)
		case events.KindPreview:
			pt.steps = append(pt.steps, "📊 Preview ready")
		case events.KindError:
			pt.steps = append(pt.steps, "❌ "+msg)
		case events.KindComplete:
			pt.done = true
		}
	}
	pt.updateMessage()
}

func (pt *ProgressTracker) updateMessage() {
	edit := tgbotapi.NewEditMessageText(pt.chatID, pt.messageID, pt.buildProgressMessage())
	if _, err := pt.s.Send(edit); err != nil && pt.log != nil {
		pt.log.Debug("failed to update progress message", zap.Error(err))
	}
}

func (pt *ProgressTracker) buildProgressMessage() string {
	var b strings.Builder
	if pt.done {
		b.WriteString("✅ Analysis complete\n\n")
	} else {
		b.WriteString(progressHeader + "\n\n")
	}
	for _, step := range pt.steps {
		fmt.Fprintln(&b, step)
	}
	return strings.TrimRight(b.String(), "\n")
}
