package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mido1300/sm/internal/category"
	"github.com/Mido1300/sm/internal/config"
	"github.com/Mido1300/sm/internal/logx"
	"github.com/Mido1300/sm/internal/storage"
	"github.com/Mido1300/sm/internal/task"
)

type rootFlags struct {
	configPath string
	dataDir    string
	backend    string
	quiet      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "taskd",
		Short: "Personal task manager",
		Long: `taskd keeps a personal task list with categories, priorities, due dates,
subtasks and per-task timers.

Run "taskd serve" for the local JSON API used by the browser UI, or use the
import, export and list commands directly against the data directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (overrides config)")
	root.PersistentFlags().StringVar(&flags.backend, "storage", "", "storage backend: file, sqlite or memory (overrides config)")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress structured logs on stderr")

	root.AddCommand(
		newServeCmd(flags),
		newImportCmd(flags),
		newExportCmd(flags),
		newListCmd(flags),
		newBackupCmd(flags),
		newRestoreCmd(flags),
		newDrillCmd(flags),
	)
	return root
}

func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.dataDir != "" {
		if cfg.Storage.SQLitePath == filepath.Join(cfg.DataDir, "tasks.db") {
			cfg.Storage.SQLitePath = ""
		}
		cfg.DataDir = f.dataDir
	}
	if f.backend != "" {
		cfg.Storage.Backend = f.backend
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *rootFlags) logger(cmd *cobra.Command) *log.Logger {
	if f.quiet {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "", 0)
}

func openStorage(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		return storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	default:
		return storage.NewFileStore(cfg.DataDir)
	}
}

// app is the wiring shared by every subcommand that touches tasks.
type app struct {
	cfg        *config.Config
	kv         storage.Store
	store      *task.Store
	categories *category.List
	logger     *log.Logger
}

func (f *rootFlags) open(cmd *cobra.Command) (*app, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}
	logger := f.logger(cmd)

	kv, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	store, err := task.NewStore(kv, task.WithLogger(logger), task.WithSeed(cfg.Seed()))
	if err != nil {
		kv.Close()
		return nil, err
	}
	cats, err := category.NewList(kv)
	if err != nil {
		logx.Event(logger, "warn", "categories_load_fallback", map[string]any{"error": err.Error()})
	}
	return &app{cfg: cfg, kv: kv, store: store, categories: cats, logger: logger}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}
