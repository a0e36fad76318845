// Package app wires configuration, storage, the cross-tab bus and the
// interactive front end into one running tab.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/registro/internal/cli"
	"github.com/dmitrijs2005/registro/internal/config"
	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/identity"
	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/dmitrijs2005/registro/internal/session"
	"github.com/dmitrijs2005/registro/internal/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	store  *store.Store
	broker eventbus.Broker
	ch     eventbus.Channel
	state  *session.State
	cli    *cli.App
	stdin  io.Closer
}

// NewApp opens the database, connects to the bus and restores whatever
// identity an earlier run persisted.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogFormat, c.LogLevel, os.Stderr)

	s, err := store.Open(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	broker, err := eventbus.New(ctx, c.BusDriver, c.ChannelName, s.DB(), c.RedisURL, logger.Slog())
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("bus init error: %w", err)
	}
	if c.BusDriver == config.BusGoChannel || c.BusDriver == config.BusMemory {
		logger.Warn(ctx, "bus driver only reaches this process; other tabs will not see its events", "bus", c.BusDriver)
	}

	ch, err := broker.Open(ctx)
	if err != nil {
		_ = broker.Close()
		_ = s.Close()
		return nil, fmt.Errorf("bus init error: %w", err)
	}

	repo := repository.New(s, ch, logger)
	state := session.New(repo, identity.NewSQLiteStorage(s.DB(), c.Tab), ch, logger)

	app := &App{
		config: c,
		logger: logger,
		store:  s,
		broker: broker,
		ch:     ch,
		state:  state,
		cli:    cli.NewApp(state, repo, broker, logger, c.ExportDir),
		stdin:  os.Stdin,
	}

	role, err := state.Restore(ctx)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	logger.Info(ctx, "tab ready", "tab", c.Tab, "role", role.String(), "bus", c.BusDriver, "channel", c.ChannelName)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks in the REPL until the user leaves or a signal arrives, then
// releases every resource.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	// The REPL blocks reading stdin; closing it is what stops it on a signal.
	go func() {
		<-ctx.Done()
		_ = app.stdin.Close()
	}()

	runErr := app.cli.Run(ctx, app.ch)
	return errors.Join(runErr, app.Close())
}

// Close releases the channel, the broker and the database.
func (app *App) Close() error {
	return errors.Join(app.ch.Close(), app.broker.Close(), app.store.Close())
}
