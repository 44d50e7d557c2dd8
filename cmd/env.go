package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/browser"
	"github.com/sells-group/leadgen/internal/extract"
	"github.com/sells-group/leadgen/internal/jobs"
	"github.com/sells-group/leadgen/internal/report"
	"github.com/sells-group/leadgen/internal/selector"
	"github.com/sells-group/leadgen/internal/store"
)

// appEnv holds the orchestrator and its archive for the serve and scrape
// commands.
type appEnv struct {
	Store   store.Store // nil when the archive is disabled
	Manager *jobs.Manager
}

// Close releases resources held by the environment. Callers must wait for
// the manager first so terminal snapshots reach the archive.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv wires selectors, the extraction engine, the chromedp driver
// factory, the report generator and the optional archive into a Manager
// whose pipelines run under ctx. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	sel, err := selector.Load(cfg.Extract.SelectorsFile)
	if err != nil {
		return nil, err
	}

	engine := extract.New(cfg.EngineConfig(), sel)
	newDriver := browser.NewChromeFactory(cfg.BrowserOptions())

	env := &appEnv{}
	var opts []jobs.Option

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil {
		env.Store = st
		opts = append(opts, jobs.WithArchive(st))
	}

	env.Manager = jobs.NewManager(ctx, cfg.OrchestratorConfig(), engine, newDriver, report.NewGenerator(), opts...)

	zap.L().Info("environment ready",
		zap.Bool("archive", st != nil),
		zap.String("selectors_file", cfg.Extract.SelectorsFile),
		zap.String("output_dir", cfg.Jobs.OutputDir),
	)
	return env, nil
}

// initStore opens and migrates the job archive. It returns nil when no
// driver is configured.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadgen.db"
		}
		st, err = store.NewSQLite(dsn)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
