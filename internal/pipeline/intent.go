package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ai-datalab/internal/events"
	"ai-datalab/internal/llm"
	"ai-datalab/internal/logging"
)

// historyWindow is how many earlier turns the intent prompt includes.
const historyWindow = 3

type IntentStage struct {
	llm      llm.Client
	events   Publisher
	datasets Datasets
	prompts  Prompts
	log      *zap.Logger
}

// NewIntentStage builds the stage. datasets is optional; when set the prompt
// lists the files the model can choose from.
func NewIntentStage(client llm.Client, pub Publisher, datasets Datasets, prompts Prompts, logger *zap.Logger) *IntentStage {
	return &IntentStage{
		llm:      client,
		events:   pub,
		datasets: datasets,
		prompts:  prompts,
		log:      logging.OrNop(logger).Named("intent"),
	}
}

func (s *IntentStage) Name() string { return "intent" }

func (s *IntentStage) Run(ctx context.Context, st *State) error {
	s.events.Publish(st.SessionID, events.KindStatus, map[string]any{"message": "Understanding your request..."})

	resp, err := llm.Complete(ctx, s.llm, s.prompt(st))
	if err != nil {
		return fmt.Errorf("understand intent: %w", err)
	}
	st.Intent = ParseIntent(resp.Content)

	s.log.Debug("intent parsed",
		zap.String("session_id", st.SessionID),
		zap.String("csv_file", st.Intent.CSVFile),
		zap.Strings("operations", st.Intent.Operations),
		zap.Int("tokens", resp.TotalTokens))
	return nil
}

func (s *IntentStage) prompt(st *State) string {
	var b strings.Builder
	b.WriteString(s.prompts.IntentInstruction)
	b.WriteString("\n")

	if s.datasets != nil {
		if files, err := s.datasets.List(); err == nil && len(files) > 0 {
			fmt.Fprintf(&b, "Available CSV files: %s\n\n", strings.Join(files, ", "))
		}
	}

	if len(st.History) > 0 {
		b.WriteString("Previous conversation:\n")
		turns := st.History
		if len(turns) > historyWindow {
			turns = turns[len(turns)-historyWindow:]
		}
		for _, t := range turns {
			fmt.Fprintf(&b, "- %s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User message: %s\n\n", st.UserMessage)
	b.WriteString(s.prompts.IntentFormat)
	return b.String()
}

type intentJSON struct {
	Intent     string         `json:"intent"`
	CSVFile    *string        `json:"csv_file"`
	Operations []string       `json:"operations"`
	Filters    map[string]any `json:"filters"`
}

// ParseIntent decodes the model's JSON answer. Anything that does not decode
// into the expected object becomes an intent carrying the raw text with no
// file and no operations.
func ParseIntent(raw string) Intent {
	var parsed intentJSON
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return Intent{Intent: raw, Operations: []string{}}
	}
	out := Intent{
		Intent:     parsed.Intent,
		Operations: parsed.Operations,
		Filters:    parsed.Filters,
	}
	if parsed.CSVFile != nil {
		out.CSVFile = strings.TrimSpace(*parsed.CSVFile)
	}
	if out.Operations == nil {
		out.Operations = []string{}
	}
	return out
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
