// Package agent wires configuration, storage, inference and the conversation
// loop into a runnable application.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"emotive.arpa/agent/config"
	"emotive.arpa/agent/conversation"
	"emotive.arpa/agent/http"
	"emotive.arpa/agent/inference"
	"emotive.arpa/agent/topics"
	"emotive.arpa/logger"
)

type Agent struct {
	BuildOpts    config.BuildOpts
	In           io.Reader
	Out          io.Writer
	logger       logger.Logger
	log          *zap.Logger
	config       config.Config
	table        *topics.Table
	store        *topics.Store
	history      *conversation.History
	watcher      *config.TopicsWatcher
	orchestrator *conversation.Orchestrator
	httpServer   *http.Server

	// Replaces the configured backend, used by tests.
	generator inference.Generator
}

func NewAgent(buildOpts config.BuildOpts) *Agent {
	return &Agent{
		BuildOpts: buildOpts,
		In:        os.Stdin,
		Out:       os.Stdout,
	}
}

func (s *Agent) Setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	s.config, err = s.BuildOpts.MakeConfig(cmd)
	if err != nil {
		return ctx, fmt.Errorf("config setup: %w", err)
	}

	isProd := s.config.Environment == config.EnvironmentProduction
	s.logger, err = logger.NewLogger(logger.LoggerOpts{
		Level:        s.config.LogLevel,
		IsProduction: isProd,
		JSONConsole:  isProd,
	})
	if err != nil {
		return ctx, err
	}
	s.log = s.logger.Get()

	if err := s.setupTopics(ctx); err != nil {
		return ctx, err
	}

	var opts []conversation.Option
	if s.config.DataDir != "" {
		s.history, err = conversation.NewHistory(s.config.DataDir)
		if err != nil {
			return ctx, fmt.Errorf("open history: %w", err)
		}
		opts = append(opts, conversation.WithTopicStore(s.store), conversation.WithHistory(s.history))
	}
	opts = append(opts, conversation.WithOutput(s.Out))

	llm := s.generator
	if llm == nil {
		llm, err = inference.New(s.log, s.config.Inference)
		if err != nil {
			return ctx, fmt.Errorf("inference setup: %w", err)
		}
	}

	s.orchestrator = conversation.NewOrchestrator(s.log, s.config.Conversation, llm, s.table, opts...)
	s.httpServer = http.NewServer(s.log, s.config.Server, s.orchestrator)

	s.log.Debug("Agent configured.",
		zap.String("version", s.config.Version),
		zap.String("endpoint", s.config.Inference.BaseURL()),
		zap.String("model", s.config.Inference.Model),
		zap.Stringer("backend", s.config.Inference.Backend),
		zap.Stringer("policy", s.config.Conversation.Policy),
		zap.String("dataDir", s.config.DataDir),
	)
	return ctx, nil
}

// setupTopics seeds the table from the topics file or the built-in set, then
// restores topics learned in earlier sessions.
func (s *Agent) setupTopics(ctx context.Context) error {
	seed := topics.DefaultSeed()
	if s.config.TopicsFile != "" {
		entries, err := config.LoadTopics(s.config.TopicsFile)
		if err != nil {
			return fmt.Errorf("load topics file: %w", err)
		}
		seed = entries
	}
	s.table = topics.NewTable(seed)

	if s.config.DataDir == "" {
		return nil
	}
	var err error
	s.store, err = topics.NewStore(s.config.DataDir)
	if err != nil {
		return fmt.Errorf("open topic store: %w", err)
	}
	restored, err := s.store.Restore(ctx, s.table)
	if err != nil {
		return fmt.Errorf("restore topics: %w", err)
	}
	if restored > 0 {
		s.log.Info("Restored learned topics.", zap.Int("count", restored))
	}
	return nil
}

// startWatcher merges topics added to the topics file while running.
func (s *Agent) startWatcher(ctx context.Context) error {
	if !s.config.WatchTopics || s.watcher != nil {
		return nil
	}
	w, err := config.NewTopicsWatcher(s.log, s.config.TopicsFile)
	if err != nil {
		return fmt.Errorf("create topics watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("start topics watcher: %w", err)
	}
	w.AddCallback("table", func(entries []topics.Entry) {
		if added := s.table.Merge(entries); added > 0 {
			s.log.Info("Merged topics from file.", zap.Int("added", added))
		}
	})
	s.watcher = w
	return nil
}

// Chat runs the interactive loop on In and Out.
func (s *Agent) Chat(ctx context.Context) error {
	if err := s.startWatcher(ctx); err != nil {
		return err
	}
	err := s.orchestrator.Run(ctx, s.In)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Run serves the HTTP API until Shutdown.
func (s *Agent) Run(runCtx context.Context) error {
	if err := s.startWatcher(runCtx); err != nil {
		return err
	}
	return s.httpServer.Run(runCtx)
}

func (s *Agent) BeginShutdown(ctx context.Context) error {
	if err := s.httpServer.BeginShutdown(ctx); err != nil {
		return fmt.Errorf("begin shutdown http server: %w", err)
	}
	return nil
}

// Shutdown resources in reverse order of the Setup/Run
func (s *Agent) Shutdown(ctx context.Context) error {
	var errs error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("close topic store: %w", err))
		}
	}
	if s.log == nil {
		return errs
	}
	// Sync throws an error when logging to console (sync is for buffered file logging)
	// `sync /dev/stderr: inappropriate ioctl for device`
	// https://github.com/uber-go/zap/issues/880
	if err := s.log.Sync(); err != nil && !errors.Is(err, syscall.ENOTTY) && !errors.Is(err, syscall.EINVAL) {
		errs = errors.Join(errs, fmt.Errorf("sync logger: %w", err))
	}
	return errs
}

func (s *Agent) ForceShutdown(ctx context.Context) error {
	return nil
}

func (s *Agent) Logger() *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log
}
