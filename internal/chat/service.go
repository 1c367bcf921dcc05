// Package chat answers user messages by running the analysis pipeline
// against a session's history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ai-datalab/internal/events"
	"ai-datalab/internal/history"
	"ai-datalab/internal/logging"
	"ai-datalab/internal/pipeline"
	"ai-datalab/internal/storage"
)

var ErrEmptyMessage = errors.New("message must not be empty")

// fallbackResponse replaces an empty model answer.
const fallbackResponse = "I'm sorry, I couldn't generate a response."

type Reply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

type Runner interface {
	Run(ctx context.Context, st *pipeline.State) error
}

type Service struct {
	store    *history.Store
	pipeline Runner
	events   pipeline.Publisher
	recorder storage.Recorder
	now      func() time.Time
	log      *zap.Logger
}

// NewService wires the service. recorder may be nil.
func NewService(store *history.Store, runner Runner, pub pipeline.Publisher, recorder storage.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = storage.Nop{}
	}
	return &Service{
		store:    store,
		pipeline: runner,
		events:   pub,
		recorder: recorder,
		now:      time.Now,
		log:      logging.OrNop(logger).Named("chat"),
	}
}

// Handle processes one message. An empty sessionID starts a new session.
// Messages for the same session are handled one at a time.
func (s *Service) Handle(ctx context.Context, sessionID, message string) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = history.NewID()
	}

	unlock := s.store.Lock(sessionID)
	defer unlock()

	session := s.store.GetOrCreate(sessionID)
	s.store.AppendTurn(sessionID, history.RoleUser, message)

	st := pipeline.NewState(sessionID, message, session.Turns)
	if err := s.pipeline.Run(ctx, st); err != nil {
		s.events.Publish(sessionID, events.KindError, map[string]any{
			"message": fmt.Sprintf("Error processing message: %v", err),
		})
		s.record(st, true)
		s.log.Error("message failed", zap.String("session_id", sessionID), zap.Error(err))
		return Reply{SessionID: sessionID}, err
	}

	response := st.Response
	if strings.TrimSpace(response) == "" {
		response = fallbackResponse
		st.Response = response
	}
	s.store.AppendTurn(sessionID, history.RoleAssistant, response)
	s.record(st, st.Analysis.Failed())

	s.log.Info("message answered",
		zap.String("session_id", sessionID),
		zap.String("file", st.Analysis.File),
		zap.Int("turns", len(session.Turns)+2))
	return Reply{Response: response, SessionID: sessionID}, nil
}

// History returns a copy of the session's turns.
func (s *Service) History(sessionID string) []history.Turn {
	return s.store.Turns(sessionID)
}

func (s *Service) record(st *pipeline.State, failed bool) {
	ev := storage.Event{
		Timestamp:         s.now().UTC(),
		SessionID:         st.SessionID,
		UserMessage:       st.UserMessage,
		AssistantResponse: st.Response,
		Intent:            st.Intent.Intent,
		File:              st.Analysis.File,
		Failed:            failed,
	}
	if err := s.recorder.AppendInteraction(ev); err != nil {
		s.log.Warn("failed to record interaction", zap.String("session_id", st.SessionID), zap.Error(err))
	}
}
