// Package pipeline runs a chat message through intent understanding, data
// processing and response generation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ai-datalab/internal/events"
	"ai-datalab/internal/llm"
	"ai-datalab/internal/logging"
)

// Stage transforms the shared state. Stages absorb recoverable problems into
// the state themselves; a returned error aborts the run.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

// Publisher receives progress events emitted while stages run.
type Publisher interface {
	Publish(sessionID string, kind events.Kind, payload map[string]any)
}

// Datasets is the part of the dataset catalog the stages need.
type Datasets interface {
	List() ([]string, error)
	First() (string, bool, error)
	Resolve(name string) (string, error)
}

// Pipeline runs its stages in order, once per message.
type Pipeline struct {
	stages []Stage
	log    *zap.Logger
}

func New(logger *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, log: logging.OrNop(logger).Named("pipeline")}
}

type Deps struct {
	LLM      llm.Client
	Events   Publisher
	Datasets Datasets
	Prompts  Prompts
	// Language the final answer is written in.
	Language string
	Logger   *zap.Logger
}

// Default wires intent → processing → response.
func Default(d Deps) *Pipeline {
	return New(d.Logger,
		NewIntentStage(d.LLM, d.Events, d.Datasets, d.Prompts, d.Logger),
		NewProcessingStage(d.Datasets, d.Events, NewRenderer(), d.Logger),
		NewResponseStage(d.LLM, d.Events, d.Prompts, d.Language, d.Logger),
	)
}

// StageNames lists the stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage against st. The first stage error stops the run;
// a panicking stage is reported as an error as well.
func (p *Pipeline) Run(ctx context.Context, st *State) (err error) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("stage panicked", zap.String("stage", current), zap.String("session_id", st.SessionID), zap.Any("panic", r))
			err = fmt.Errorf("%s stage panicked: %v", current, r)
		}
	}()

	for _, stage := range p.stages {
		current = stage.Name()
		start := time.Now()
		if err := stage.Run(ctx, st); err != nil {
			p.log.Warn("stage failed", zap.String("stage", current), zap.String("session_id", st.SessionID), zap.Error(err))
			return fmt.Errorf("%s stage: %w", current, err)
		}
		p.log.Debug("stage done", zap.String("stage", current), zap.String("session_id", st.SessionID), zap.Duration("took", time.Since(start)))
	}
	return nil
}
