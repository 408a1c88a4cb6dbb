package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	workflow "github.com/intrafind/ihub-apps-sub010"
	"github.com/intrafind/ihub-apps-sub010/llm"
	"github.com/intrafind/ihub-apps-sub010/script"
	"github.com/intrafind/ihub-apps-sub010/sqlstore"
	"github.com/intrafind/ihub-apps-sub010/tools"
)

// runtime is an engine assembled from configuration.
type runtime struct {
	engine      *workflow.Engine
	definitions workflow.DefinitionRegistry
	logger      *slog.Logger
	closers     []io.Closer
}

func newRuntime(ctx context.Context, cfg *Config, stderr io.Writer) (*runtime, error) {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	var logger *slog.Logger
	if cfg.Log.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	} else {
		logger = workflow.NewTextLogger(stderr, level)
	}

	var compiler script.Compiler
	switch cfg.Script.Engine {
	case "expr", "":
		compiler = script.NewExprEngine()
	case "risor":
		compiler = script.NewRisorScriptingEngine(script.DefaultRisorGlobals())
	default:
		return nil, fmt.Errorf("unsupported script engine %q", cfg.Script.Engine)
	}

	rt := &runtime{logger: logger}
	store, err := rt.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	definitions, err := workflow.NewFileDefinitionRegistry(cfg.DefinitionsDir)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.definitions = definitions

	var nodeLogger workflow.NodeLogger
	if cfg.NodeLogsDir != "" {
		nodeLogger = workflow.NewFileNodeLogger(cfg.NodeLogsDir)
	}

	var completer workflow.Completer
	switch cfg.LLM.Provider {
	case "":
	case "openai":
		c, err := llm.NewOpenAI(cfg.LLM.OpenAIConfig, llm.WithLogger(logger))
		if err != nil {
			rt.Close()
			return nil, err
		}
		completer = c
	default:
		rt.Close()
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}

	rt.engine = workflow.NewEngine(workflow.EngineOptions{
		Store:                store,
		Completer:            completer,
		Tools:                tools.NewRegistry(tools.NewPrintTool(os.Stderr)),
		Logger:               logger,
		ScriptCompiler:       compiler,
		NodeLogger:           nodeLogger,
		Definitions:          definitions,
		NodeTimeout:          cfg.Engine.NodeTimeout,
		DefaultMaxIterations: cfg.Engine.MaxIterations,
	})
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context, cfg *Config) (workflow.Store, error) {
	switch cfg.Store.Type {
	case "memory":
		return workflow.NewMemoryStore(), nil
	case "file", "":
		return workflow.NewFileStore(cfg.Store.Dir)
	}
	dialect, err := sqlstore.ParseDialect(cfg.Store.Type)
	if err != nil {
		return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
	}
	if cfg.Store.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required for the %s store", dialect)
	}
	store, err := sqlstore.Open(ctx, dialect, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store)
	return store, nil
}

func (rt *runtime) Close() {
	for _, c := range rt.closers {
		if err := c.Close(); err != nil {
			rt.logger.Warn("close failed", "error", err)
		}
	}
}

// workflowFor returns the definition for a stored execution, preferring an
// explicitly given file.
func (rt *runtime) workflowFor(file, workflowID string) (*workflow.Workflow, error) {
	if file != "" {
		return workflow.LoadFile(file)
	}
	if wf, ok := rt.definitions.Get(workflowID); ok {
		return wf, nil
	}
	return nil, fmt.Errorf("%w: no stored definition for workflow %q, pass --file", workflow.ErrWorkflowRequired, workflowID)
}
