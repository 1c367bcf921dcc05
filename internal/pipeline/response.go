package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ai-datalab/internal/events"
	"ai-datalab/internal/llm"
	"ai-datalab/internal/logging"
)

type ResponseStage struct {
	llm      llm.Client
	events   Publisher
	prompts  Prompts
	language string
	log      *zap.Logger
}

func NewResponseStage(client llm.Client, pub Publisher, prompts Prompts, language string, logger *zap.Logger) *ResponseStage {
	if language == "" {
		language = "English"
	}
	return &ResponseStage{
		llm:      client,
		events:   pub,
		prompts:  prompts,
		language: language,
		log:      logging.OrNop(logger).Named("response"),
	}
}

func (s *ResponseStage) Name() string { return "response" }

func (s *ResponseStage) Run(ctx context.Context, st *State) error {
	resp, err := llm.Complete(ctx, s.llm, s.prompt(st))
	if err != nil {
		return fmt.Errorf("generate response: %w", err)
	}
	st.Response = resp.Content

	s.events.Publish(st.SessionID, events.KindComplete, map[string]any{"message": "Analysis complete"})
	s.log.Debug("response generated",
		zap.String("session_id", st.SessionID),
		zap.String("model", resp.Model),
		zap.Int("tokens", resp.TotalTokens))
	return nil
}

func (s *ResponseStage) prompt(st *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User asked: %s\n\n", st.UserMessage)

	intent := st.Intent.Intent
	if intent == "" {
		intent = "N/A"
	}
	fmt.Fprintf(&b, "Intent identified: %s\n\n", intent)

	a := st.Analysis
	if a.Failed() {
		fmt.Fprintf(&b, "Error occurred: %s\n", a.Error)
		b.WriteString(s.prompts.ErrorInstruction)
		return b.String()
	}

	b.WriteString("Analysis completed successfully:\n")
	fmt.Fprintf(&b, "- File: %s\n", orNA(a.File))
	fmt.Fprintf(&b, "- Rows processed: %d\n", a.Rows)
	fmt.Fprintf(&b, "- Columns: %s\n", strings.Join(a.Columns, ", "))
	if a.Summary != nil && len(a.Summary.NumericSummary) > 0 {
		cols := make([]string, 0, len(a.Summary.NumericSummary))
		for col := range a.Summary.NumericSummary {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		parts := make([]string, 0, len(cols))
		for _, col := range cols {
			d := a.Summary.NumericSummary[col]
			parts = append(parts, fmt.Sprintf("%s (mean %.4g, min %.4g, max %.4g)", col, d.Mean, d.Min, d.Max))
		}
		fmt.Fprintf(&b, "- Numeric columns: %s\n", strings.Join(parts, "; "))
	}
	if n := len(a.FilteredSample); n > 0 {
		fmt.Fprintf(&b, "- Filtered sample rows: %d\n", n)
	}
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(s.prompts.SummaryInstruction, "{language}", s.language))
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
