package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ai-datalab/internal/dataset"
	"ai-datalab/internal/events"
	"ai-datalab/internal/logging"
)

const (
	filterSampleRows  = 10
	defaultSampleRows = 5

	errNoDataset = "No CSV file specified and no CSV files found in data directory"
)

var (
	summaryKeywords = []string{"summary", "summarize"}
	filterKeywords  = []string{"filter"}
)

type ProcessingStage struct {
	datasets Datasets
	events   Publisher
	render   *Renderer
	log      *zap.Logger
}

func NewProcessingStage(datasets Datasets, pub Publisher, render *Renderer, logger *zap.Logger) *ProcessingStage {
	if render == nil {
		render = NewRenderer()
	}
	return &ProcessingStage{
		datasets: datasets,
		events:   pub,
		render:   render,
		log:      logging.OrNop(logger).Named("processing"),
	}
}

func (s *ProcessingStage) Name() string { return "processing" }

// Run never returns an error: every failure ends up in st.Analysis.Error and
// an error event.
func (s *ProcessingStage) Run(_ context.Context, st *State) error {
	file := st.Intent.CSVFile
	if file == "" {
		first, ok, err := s.datasets.First()
		if err != nil {
			s.fail(st, err)
			return nil
		}
		if !ok {
			st.Analysis = AnalysisResult{Error: errNoDataset}
			s.publish(st, events.KindError, "message", errNoDataset)
			return nil
		}
		file = first
		s.publish(st, events.KindStatus, "message", fmt.Sprintf("Using available file: %s", file))
	} else {
		s.publish(st, events.KindStatus, "message", fmt.Sprintf("Using requested file: %s", file))
	}

	path, err := s.datasets.Resolve(file)
	if err != nil {
		s.fail(st, err)
		return nil
	}
	frame, err := dataset.Load(path)
	if err != nil {
		s.fail(st, err)
		return nil
	}
	s.publish(st, events.KindStatus, "message", fmt.Sprintf("Loaded %s with %d rows", file, frame.Len()))

	res := AnalysisResult{
		File:    file,
		Rows:    frame.Len(),
		Columns: frame.Columns,
	}

	wantSummary := st.mentions(summaryKeywords...)
	wantFilter := st.mentions(filterKeywords...)

	if wantSummary {
		summary := frame.Summary()
		res.Summary = &summary
		s.publish(st, events.KindPreview, "html", s.render.HTML(summaryMarkdown(summary)))
	}

	if wantFilter {
		filtered := frame
		if len(st.Intent.Filters) > 0 {
			filtered = frame.Filter(st.Intent.Filters)
		}
		res.FilteredSample = filtered.Head(filterSampleRows)
		s.publish(st, events.KindPreview, "html", s.render.HTML(sampleMarkdown("Sample Data", frame.Columns, res.FilteredSample)))
	}

	if !wantSummary && !wantFilter {
		summary := frame.Summary()
		res.Summary = &summary
		res.Sample = frame.Head(defaultSampleRows)
		s.publish(st, events.KindPreview, "html", s.render.HTML(overviewMarkdown(file, summary, res.Sample)))
	}

	st.Analysis = res
	st.Frame = frame
	s.log.Debug("dataset processed",
		zap.String("session_id", st.SessionID),
		zap.String("file", file),
		zap.Int("rows", res.Rows),
		zap.Bool("summary", wantSummary),
		zap.Bool("filter", wantFilter))
	return nil
}

func (s *ProcessingStage) fail(st *State, err error) {
	st.Analysis = AnalysisResult{Error: err.Error()}
	s.publish(st, events.KindError, "message", fmt.Sprintf("Error processing data: %v", err))
	s.log.Warn("dataset processing failed", zap.String("session_id", st.SessionID), zap.Error(err))
}

func (s *ProcessingStage) publish(st *State, kind events.Kind, key, value string) {
	s.events.Publish(st.SessionID, kind, map[string]any{key: value})
}

// mentions reports whether any keyword occurs, case-insensitively, in the
// requested operations or in the raw message.
func (st *State) mentions(keywords ...string) bool {
	ops := strings.ToLower(strings.Join(st.Intent.Operations, " "))
	msg := strings.ToLower(st.UserMessage)
	for _, k := range keywords {
		if strings.Contains(ops, k) || strings.Contains(msg, k) {
			return true
		}
	}
	return false
}
