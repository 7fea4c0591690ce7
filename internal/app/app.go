package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hardwire/internal/archive"
	"hardwire/internal/config"
	"hardwire/internal/database"
	"hardwire/internal/encryption"
	"hardwire/internal/hardwire"
	"hardwire/internal/httpapi"
	"hardwire/internal/indexer"
	"hardwire/internal/progress"
	"hardwire/internal/share"
	"hardwire/internal/tasks"
	"hardwire/internal/vault"
)

const shutdownTimeout = 10 * time.Second

// App is the application layer between the CLI and the services.
// It constructs all dependencies from config and owns their lifecycle.
type App struct {
	cfg     *config.Config
	db      hardwire.Database
	vault   hardwire.Vault
	bus     *progress.Bus
	tracker *progress.Tracker
	feed    *httpapi.LiveFeed
	indexer *indexer.Indexer
	tasks   *tasks.Manager
	shares  *share.Service
	server  *httpapi.Server
	logger  hardwire.Logger
	logFile *os.File

	mu   sync.Mutex
	addr net.Addr
}

// New creates a fully wired App from the given config. runName identifies
// the CLI command in log lines. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, runName string) (*App, error) {
	runID := runName + "-" + time.Now().UTC().Format("20060102T150405Z")
	l, logFile, err := newLogger(cfg.LogDir, runID, slog.LevelInfo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a, err := newApp(ctx, cfg, &slogAdapter{l: l})
	if err != nil {
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger hardwire.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if v != nil {
		if err := v.ValidateSetup(ctx); err != nil {
			return nil, fmt.Errorf("vault %s not usable: %w", v.Name(), err)
		}
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	if err := os.MkdirAll(cfg.Indexer.Root, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating share root: %w", err)
	}
	ix, err := indexer.New(cfg.Indexer.Root, time.Duration(cfg.Indexer.IntervalSecs)*time.Second, cfg.Indexer.Ignore, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating indexer: %w", err)
	}

	clock := hardwire.RealClock{}
	idgen := hardwire.UUIDGenerator{}

	mgr := tasks.NewManager(db, archive.NewBuilder(enc), v, tasks.Options{
		QueueSize:        cfg.Tasks.QueueSize,
		ProgressInterval: time.Duration(cfg.Tasks.ProgressIntervalMs) * time.Millisecond,
		ArchiveDir:       cfg.Tasks.ArchiveDir,
	}, logger, clock, idgen)

	bus := progress.NewBus(cfg.Progress.BusCapacity)
	feed := httpapi.NewLiveFeed(logger)
	shares := share.NewService(db, ix.Root(), clock, idgen, logger)

	srv := httpapi.NewServer(httpapi.Deps{
		Downloads: db,
		Shares:    shares,
		Tasks:     mgr,
		Index:     ix,
		Events:    bus,
		Feed:      feed,
		PublicURL: cfg.Server.PublicURL,
		ShareTTL:  time.Duration(cfg.Server.ShareTTLHours) * time.Hour,
		Logger:    logger,
	})

	return &App{
		cfg:     cfg,
		db:      db,
		vault:   v,
		bus:     bus,
		tracker: progress.NewTracker(db, clock, logger),
		feed:    feed,
		indexer: ix,
		tasks:   mgr,
		shares:  shares,
		server:  srv,
		logger:  logger,
	}, nil
}

// Run serves HTTP and runs the background components until ctx is cancelled
// or the process receives SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.tasks.Recover(ctx); err != nil {
		return err
	}

	trackerSub, err := a.bus.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribing download tracker: %w", err)
	}
	feedSub, err := a.bus.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribing live feed: %w", err)
	}

	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		a.bus.Close()
		return fmt.Errorf("listening on %s: %w", a.cfg.Server.Addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context) error{
		"download tracker": func(ctx context.Context) error { return a.tracker.Run(ctx, trackerSub) },
		"live feed":        func(ctx context.Context) error { return a.feed.Run(ctx, feedSub) },
		"file indexer":     a.indexer.Run,
		"task worker":      a.tasks.Run,
	} {
		name, run := name, run
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("background component stopped", "component", name, "error", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.Serve(ln) }()
	a.logger.Info("server listening", "addr", ln.Addr().String(), "root", a.indexer.Root())

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		err = nil
	case err = <-serveErr:
		err = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Warn("http shutdown incomplete", "error", shutdownErr)
	}

	a.tasks.Close()
	cancel()
	wg.Wait()
	a.bus.Close()
	return err
}

// Addr returns the listening address once Run has bound it, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Publish creates a share link for paths and returns its public URL.
func (a *App) Publish(ctx context.Context, paths []string, ttl time.Duration) (string, []*hardwire.SharedFile, error) {
	link, files, err := a.shares.Publish(ctx, paths, ttl)
	if err != nil {
		return "", nil, err
	}
	return share.URL(a.cfg.Server.PublicURL, link.ID), files, nil
}

// Archive submits an archive job and runs the worker in-process until the
// job finishes. onProgress, if set, is called with each polled state.
func (a *App) Archive(ctx context.Context, in hardwire.ArchiveJobInput, onProgress func(*hardwire.Task)) (*hardwire.Task, error) {
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.tasks.Run(workerCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	id, err := a.tasks.SubmitArchiveJob(ctx, in)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		task, err := a.tasks.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(task)
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TaskStatus returns a task by id.
func (a *App) TaskStatus(ctx context.Context, id string) (*hardwire.Task, error) {
	return a.tasks.GetTask(ctx, id)
}

// Downloads returns the n most recent download sessions.
func (a *App) Downloads(ctx context.Context, n int) ([]*hardwire.DownloadSession, error) {
	return a.db.ListDownloads(ctx, n, 0)
}

// DownloadStats summarizes all download sessions.
func (a *App) DownloadStats(ctx context.Context) (*hardwire.DownloadStats, error) {
	return a.db.DownloadStats(ctx)
}

// Close closes the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
