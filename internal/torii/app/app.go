// Package app wires Torii's components together and runs the selected
// front end.
package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/config"
	"github.com/bdobrica/Torii/internal/torii/engine"
	"github.com/bdobrica/Torii/internal/torii/executor"
	"github.com/bdobrica/Torii/internal/torii/llm"
	"github.com/bdobrica/Torii/internal/torii/matrix"
	"github.com/bdobrica/Torii/internal/torii/observability"
	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/session"
	"github.com/bdobrica/Torii/internal/torii/tracker"
	"github.com/bdobrica/Torii/internal/torii/web"
)

// App is the assembled Torii application.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	ledger  *approvals.Ledger
	reaper  *approvals.Reaper
	engine  *engine.Engine
	store   session.Store
	dbStore *session.SQLiteStore

	webServer    *web.Server
	matrixClient *matrix.Client
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	observability.Setup(cfg.Log.Level, cfg.Log.Format)
	logger := slog.Default()

	// Session persistence: sqlite when a path is configured, memory otherwise.
	var store session.Store
	var dbStore *session.SQLiteStore
	if cfg.SessionDB != "" {
		db, err := session.NewSQLiteStore(cfg.SessionDB)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		store = db
		dbStore = db
	} else {
		store = session.NewMemoryStore()
		logger.Warn("no session_db configured, sessions are in-memory only")
	}

	trackerClient := tracker.New(tracker.Config{
		BaseURL:  cfg.Tracker.BaseURL,
		Username: cfg.Tracker.Username,
		Token:    cfg.Tracker.Token,
		Timeout:  cfg.Tracker.Timeout.Std(),
	}, logger)

	var responder ops.GeneralResponder
	if cfg.LLM.APIKey != "" {
		responder = llm.New(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout.Std(),
		})
	} else {
		responder = &llm.StaticResponder{}
		logger.Info("no LLM API key configured, using static replies for small talk")
	}

	ledger := approvals.NewLedger(cfg.Approvals.TTL.Std())
	exec := executor.New(ledger, trackerClient, executor.Config{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay.Std(),
		MaxDelay:     cfg.Retry.MaxDelay.Std(),
	}, logger)
	eng := engine.New(ledger, exec, trackerClient, responder, logger)
	reaper := approvals.NewReaper(ledger, cfg.Approvals.ReapInterval.Std(), logger)

	a := &App{
		cfg:     cfg,
		logger:  logger,
		ledger:  ledger,
		reaper:  reaper,
		engine:  eng,
		store:   store,
		dbStore: dbStore,
	}

	switch cfg.Mode {
	case "web":
		a.webServer = web.New(web.Config{
			Listen:    cfg.Web.Listen,
			AuthToken: cfg.Web.AuthToken,
		}, eng, store, logger)
	case "matrix":
		mc, err := matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
		}, eng, store, logger)
		if err != nil {
			return nil, err
		}
		a.matrixClient = mc
	}

	return a, nil
}

// Run starts the configured front end and blocks until ctx is cancelled (or,
// in console mode, until stdin closes).
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.reaper.Run(ctx)

	switch a.cfg.Mode {
	case "console":
		return a.runConsole(ctx)
	case "web":
		if err := a.webServer.Start(ctx); err != nil {
			return err
		}
	case "matrix":
		a.logger.Info("starting Matrix sync")
		if err := a.matrixClient.Start(ctx); err != nil {
			return fmt.Errorf("start matrix client: %w", err)
		}
	}

	a.logger.Info("Torii is running; press Ctrl+C to stop")
	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// Stop releases held resources.
func (a *App) Stop() {
	if a.matrixClient != nil {
		a.logger.Info("stopping Matrix client")
		a.matrixClient.Stop()
	}
	if a.webServer != nil {
		a.logger.Info("stopping web server")
		a.webServer.Stop()
	}
	if a.dbStore != nil {
		a.logger.Info("closing session store")
		a.dbStore.Close()
	}
}

// runConsole runs a simple read-eval loop on stdin under the fixed session
// id "console". Useful for local testing without a homeserver or web client.
func (a *App) runConsole(ctx context.Context) error {
	const sessionID = "console"

	sess, err := a.store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load console session: %w", err)
	}
	if sess == nil {
		sess = session.New(sessionID, time.Now())
	}

	fmt.Println("Torii console. Type a message, or `quit` to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}

		result, err := a.engine.HandleTurn(ctx, sess, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(result.Response)

		if err := a.store.Save(ctx, sess); err != nil {
			a.logger.Error("session save failed", "err", err)
		}
	}
}
