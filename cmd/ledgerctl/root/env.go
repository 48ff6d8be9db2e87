package root

import (
	"context"
	"database/sql"
	"errors"
	"os"

	"github.com/teens-space/progress-hub/config"
	"github.com/teens-space/progress-hub/internal/application/command"
	"github.com/teens-space/progress-hub/internal/application/query"
	"github.com/teens-space/progress-hub/internal/catalog"
	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/internal/infrastructure/persistence/sqlite"
	"github.com/teens-space/progress-hub/pkg/logger"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

var errNoLearner = errors.New("learner is not set: pass --id or LOCAL_TELEGRAM_ID")

// env is what every subcommand opens: config, the local ledger and its outbox.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	catalog *catalog.Catalog
	clock   timeutil.Clock

	db     *sql.DB
	store  *sqlite.StateStore
	outbox *sqlite.OutboxStore
}

func loadConfig() (*config.Config, error) {
	if flags.configPath != "" {
		return config.LoadFile(flags.configPath)
	}
	return config.Load()
}

func newLogger() *logger.Logger {
	level := logger.LevelWarn
	if flags.verbose {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{
		Output:      os.Stderr,
		Level:       level,
		Development: true,
	})
}

func openEnv(ctx context.Context) (*env, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	cat, err := catalog.Default()
	if flags.catalogPath != "" {
		cat, err = catalog.LoadFile(flags.catalogPath)
	}
	if err != nil {
		return nil, nil, err
	}

	path := flags.dbPath
	if path == "" {
		path = cfg.Local.DBPath
	}
	if path == "" {
		if path, err = sqlite.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	clock := timeutil.SystemClock{}
	e := &env{
		cfg:     cfg,
		log:     newLogger(),
		catalog: cat,
		clock:   clock,
		db:      db,
		outbox:  sqlite.NewOutboxStore(db),
		store: sqlite.NewStateStore(db,
			sqlite.WithOutbox(),
			sqlite.WithPolicy(ledger.DefaultPolicy()),
			sqlite.WithClock(clock.Now),
		),
	}
	cleanup := func() {
		_ = e.log.Sync()
		_ = db.Close()
	}
	return e, cleanup, nil
}

// learner resolves --id, then LOCAL_TELEGRAM_ID.
func (e *env) learner() (shared.TelegramID, error) {
	id := shared.TelegramID(flags.telegramID)
	if id == 0 {
		id = shared.TelegramID(e.cfg.Local.TelegramID)
	}
	if !id.IsValid() {
		return 0, errNoLearner
	}
	return id, nil
}

// date parses --date. The zero date means today.
func (e *env) date() (timeutil.Date, error) {
	if flags.date == "" {
		return timeutil.Date{}, nil
	}
	return timeutil.ParseDate(flags.date)
}

func (e *env) today() timeutil.Date {
	if d, err := e.date(); err == nil && !d.IsZero() {
		return d
	}
	return timeutil.Today(e.clock, e.cfg.App.Location)
}

func (e *env) ledgerDeps() command.LedgerDeps {
	return command.LedgerDeps{
		Repo:     e.store,
		Catalog:  e.catalog,
		Clock:    e.clock,
		Location: e.cfg.App.Location,
		Logger:   e.log,
	}
}

func (e *env) progress() *query.GetProgressHandler {
	return query.NewGetProgressHandler(e.store, nil, e.catalog, e.log)
}

// state returns the local state, or a fresh one for a learner without history.
func (e *env) state(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	s, err := e.progress().Handle(ctx, query.GetProgressQuery{TelegramID: id})
	if shared.IsNotFound(err) {
		s = ledger.NewState(id)
		s.BeginDay(e.today(), e.catalog)
		return s, nil
	}
	return s, err
}
