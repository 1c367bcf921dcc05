package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"ai-datalab/internal/auth"
	"ai-datalab/internal/chat"
	"ai-datalab/internal/events"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, which starts its view worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	edits []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.sent = append(f.sent, m.Text)
	case tgbotapi.EditMessageTextConfig:
		f.edits = append(f.edits, m.Text)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeChat publishes progress the way the pipeline does before answering.
type fakeChat struct {
	bus   *events.Bus
	reply string
	err   error
	got   []string
}

func (f *fakeChat) Handle(_ context.Context, sessionID, message string) (chat.Reply, error) {
	f.got = append(f.got, sessionID+"|"+message)
	if f.bus != nil {
		f.bus.Publish(sessionID, events.KindStatus, map[string]any{"message": "Understanding your request..."})
		f.bus.Publish(sessionID, events.KindComplete, map[string]any{"message": "Analysis complete"})
	}
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	return chat.Reply{Response: f.reply, SessionID: sessionID}, nil
}

type fakeSessions struct{ reset []string }

func (f *fakeSessions) Reset(id string) { f.reset = append(f.reset, id) }

func newBot(c Chatter, stream Stream) (*Bot, *fakeSender, *fakeSessions) {
	fs := &fakeSender{}
	sess := &fakeSessions{}
	return &Bot{
		s:        fs,
		authSvc:  auth.New([]int64{42}),
		chat:     c,
		sessions: sess,
		stream:   stream,
		log:      zap.NewNop(),
	}, fs, sess
}

func message(userID, chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: userID}, Chat: &tgbotapi.Chat{ID: chatID}, Text: text}
}

func TestHandleIncomingMessage_Unauthorized(t *testing.T) {
	c := &fakeChat{reply: "x"}
	b, fs, _ := newBot(c, nil)

	b.handleIncomingMessage(context.Background(), message(7, 100, "hi"))

	require.Len(t, fs.messages(), 1)
	assert.Contains(t, fs.messages()[0], "not allowed")
	assert.Empty(t, c.got)
}

func TestHandleIncomingMessage_RepliesWithChatResponse(t *testing.T) {
	bus := events.NewBus(0, nil)
	c := &fakeChat{bus: bus, reply: "Sales total 60."}
	b, fs, _ := newBot(c, bus)

	b.handleIncomingMessage(context.Background(), message(42, 100, "summarize sales"))

	assert.Equal(t, []string{"telegram-100|summarize sales"}, c.got)
	sent := fs.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, progressHeader, sent[0])
	assert.Equal(t, "Sales total 60.", sent[1])
}

func TestHandleIncomingMessage_ProgressDrainsEveryRun(t *testing.T) {
	bus := events.NewBus(0, nil)
	c := &fakeChat{bus: bus, reply: "done"}

	for i := 0; i < 50; i++ {
		b, fs, _ := newBot(c, bus)
		b.handleIncomingMessage(context.Background(), message(42, 100, "summarize sales"))

		require.Equal(t, 0, bus.Len("telegram-100"), "run %d left events queued", i)
		require.True(t, strings.HasPrefix(fs.lastEdit(), "✅ Analysis complete"), "run %d: %q", i, fs.lastEdit())
	}
}

func TestHandleIncomingMessage_ChatError(t *testing.T) {
	c := &fakeChat{err: errors.New("intent stage: boom")}
	b, fs, _ := newBot(c, events.NewBus(0, nil))

	b.handleIncomingMessage(context.Background(), message(42, 100, "hi"))

	sent := fs.messages()
	assert.Contains(t, sent[len(sent)-1], "something went wrong")
}

func TestHandleCommand_Reset(t *testing.T) {
	b, fs, sess := newBot(&fakeChat{}, nil)
	msg := message(42, 100, "/reset")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}

	b.handleIncomingMessage(context.Background(), msg)

	assert.Equal(t, []string{"telegram-100"}, sess.reset)
	assert.Equal(t, []string{"Conversation reset."}, fs.messages())
}

func TestHandleCallback_Reset(t *testing.T) {
	b, _, sess := newBot(&fakeChat{}, nil)
	b.handleCallback(&tgbotapi.CallbackQuery{
		From:    &tgbotapi.User{ID: 42},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}},
		Data:    resetCmd,
	})
	assert.Equal(t, []string{"telegram-5"}, sess.reset)
}

func TestProgressTracker_Apply(t *testing.T) {
	fs := &fakeSender{}
	pt := NewProgressTracker(fs, 1, 2, nil)

	pt.Apply(
		events.Event{Kind: events.KindStatus, Payload: map[string]any{"message": "Using available file: sales.csv"}},
		events.Event{Kind: events.KindPreview, Payload: map[string]any{"html": "<div></div>"}},
	)
	pt.Apply(events.Event{Kind: events.KindComplete, Payload: map[string]any{"message": "Analysis complete"}})

	require.Len(t, fs.edits, 2)
	assert.True(t, strings.HasPrefix(fs.edits[0], progressHeader))
	assert.Contains(t, fs.edits[0], "Using available file: sales.csv")
	assert.Contains(t, fs.edits[0], "Preview ready")
	assert.True(t, strings.HasPrefix(fs.edits[1], "✅ Analysis complete"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitMessage(long, 10))

	chunks := splitMessage(strings.Repeat("é", 25), 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("é", 10), chunks[0])
	assert.Equal(t, strings.Repeat("é", 5), chunks[2])
}
