package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ai-datalab/internal/analytics"
	"ai-datalab/internal/chat"
	"ai-datalab/internal/config"
	"ai-datalab/internal/dataset"
	"ai-datalab/internal/events"
	"ai-datalab/internal/history"
	"ai-datalab/internal/llm"
	"ai-datalab/internal/pipeline"
	"ai-datalab/internal/scheduler"
	"ai-datalab/internal/storage"
)

var timeNow = time.Now

// app holds the components shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	catalog  *dataset.Catalog
	bus      *events.Bus
	store    *history.Store
	recorder storage.Recorder
	chat     *chat.Service
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	factory := llm.NewFactory(cfg)
	var client llm.Client
	if cfg.LLMConfigured() {
		c, err := factory.CreateClient(ctx, string(cfg.LLMProvider), "")
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		client = c
	} else {
		log.Warn("llm provider has no credentials, chat requests will fail",
			zap.String("provider", string(cfg.LLMProvider)))
		client = factory.Lazy(string(cfg.LLMProvider), "")
	}
	prompts, err := pipeline.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		catalog: dataset.NewCatalog(cfg.DataDir, cfg.DataGlob, log),
		bus:     events.NewBus(cfg.EventQueueDepth, log),
		store:   history.NewStore(),
	}
	if err := a.openRecorder(ctx); err != nil {
		return nil, err
	}

	p := pipeline.Default(pipeline.Deps{
		LLM:      client,
		Events:   a.bus,
		Datasets: a.catalog,
		Prompts:  prompts,
		Language: cfg.ResponseLanguage,
		Logger:   log,
	})
	a.chat = chat.NewService(a.store, p, a.bus, a.recorder, log)

	log.Info("datalab ready",
		zap.String("provider", string(cfg.LLMProvider)),
		zap.String("data_dir", cfg.DataDir),
		zap.String("recorder", string(cfg.Recorder)),
		zap.Strings("stages", p.StageNames()))
	return a, nil
}

func (a *app) openRecorder(ctx context.Context) error {
	switch a.cfg.Recorder {
	case config.RecorderFile:
		rec, err := storage.NewFileRecorder(a.cfg.LogFilePath)
		if err != nil {
			return err
		}
		a.recorder = rec
	case config.RecorderSQLite:
		rec, err := storage.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.recorder = rec
		a.closers = append(a.closers, rec.Close)
	default:
		a.recorder = storage.Nop{}
	}
	return nil
}

// maintenanceJobs are the periodic jobs run while serving.
func (a *app) maintenanceJobs() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     "session-sweep",
			Schedule: a.cfg.SweepSchedule,
			Run: func(context.Context) error {
				sessions := a.store.Sweep(a.cfg.SessionTTL)
				queues := a.bus.Sweep(a.cfg.SessionTTL)
				if sessions > 0 || queues > 0 {
					a.log.Info("evicted idle sessions", zap.Int("sessions", sessions), zap.Int("event_queues", queues))
				}
				return nil
			},
		},
		{
			Name:     "daily-report",
			Schedule: a.cfg.ReportSchedule,
			Run: func(context.Context) error {
				evs, err := a.recorder.LoadInteractions()
				if err != nil {
					return fmt.Errorf("load interactions: %w", err)
				}
				stats := analytics.AnalyzeDailyLogs(evs, timeNow().UTC())
				a.log.Info("daily usage report",
					zap.String("date", stats.Date),
					zap.Int("messages", stats.TotalMessages),
					zap.Int("sessions", stats.UniqueSessions),
					zap.Int("failures", stats.Failures),
					zap.String("summary", stats.GenerateReportSummary()))
				return nil
			},
		},
	}
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
}
