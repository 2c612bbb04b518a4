package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-telegram/bot"

	"github.com/dhruvv90/xnode-scheduler/internal/adapter/httpapi"
	"github.com/dhruvv90/xnode-scheduler/internal/adapter/telegram"
	"github.com/dhruvv90/xnode-scheduler/internal/config"
	"github.com/dhruvv90/xnode-scheduler/internal/history"
	"github.com/dhruvv90/xnode-scheduler/internal/platform/httpclient"
	"github.com/dhruvv90/xnode-scheduler/internal/platform/logger"
	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

const (
	shutdownTimeout = 10 * time.Second
	pruneEvery      = time.Hour
	alertThrottle   = time.Minute
	telegramPoll    = 30 * time.Second
)

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, closeLog := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "xnode",
	})
	return &App{cfg: cfg, log: log, closeLog: closeLog}, nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = a.closeLog() }()

	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	a.log.Info("starting", "timers", a.cfg.Timers.Backend, "http", a.cfg.HTTP.Addr)

	rt, err := a.build(ctx)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err = <-rt.serveErr:
		a.log.Error("http server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(err, rt.shutdown(shutdownCtx))
}

// runtime holds everything build started, in the order shutdown undoes it.
type runtime struct {
	log         *slog.Logger
	sched       *scheduler.Scheduler
	store       *history.Store
	notifier    *telegram.Notifier
	srv         *http.Server
	addr        net.Addr
	serveErr    chan error
	closeTimers func(context.Context) error
}

func (a *App) build(ctx context.Context) (_ *runtime, err error) {
	rt := &runtime{log: a.log, serveErr: make(chan error, 1)}
	defer func() {
		if err != nil {
			_ = rt.shutdown(context.Background())
		}
	}()

	timers := a.timers(rt)
	rt.sched = scheduler.New(scheduler.WithSchedulerLogger(a.log))

	var runs httpapi.RunLister
	if a.cfg.HistoryEnabled() {
		if rt.store, err = history.Open(ctx, a.cfg.History.DB, a.log); err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		runs = rt.store
	}

	onError := scheduler.DefaultErrorHandler(a.log)
	if a.cfg.AlertsEnabled() {
		var cmdRuns telegram.RunLister
		if rt.store != nil {
			cmdRuns = rt.store
		}
		cmds := telegram.NewCommands(rt.sched, cmdRuns, a.cfg.Telegram.AlertChatID, a.log)
		b, err := bot.New(a.cfg.Telegram.Token,
			bot.WithSkipGetMe(),
			bot.WithHTTPClient(telegramPoll, httpclient.New(
				httpclient.WithLogger(a.log.With("component", "telegram_http")),
				httpclient.WithTimeout(telegramPoll+10*time.Second),
			)),
			bot.WithDefaultHandler(cmds.Handler()),
			bot.WithAllowedUpdates([]string{"message"}),
		)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		rt.notifier = telegram.NewNotifier(b, a.cfg.Telegram.AlertChatID, telegram.NotifierOptions{
			Throttle: alertThrottle,
			Logger:   a.log,
		})
		onError = rt.notifier.Handler(a.log)
		go b.Start(ctx)
	}

	jobOpts := []scheduler.JobOption{
		scheduler.WithTimers(timers),
		scheduler.WithLogger(a.log),
		scheduler.WithErrorHandler(onError),
	}
	if rt.store != nil {
		jobOpts = append(jobOpts, scheduler.WithHooks(rt.store.Hooks()))
	}
	if err := a.addBuiltinJobs(ctx, rt, jobOpts); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	rt.addr = ln.Addr()
	rt.srv = &http.Server{
		Handler:           httpapi.NewRouter(rt.sched, runs, a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := rt.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.serveErr <- err
		}
	}()
	a.log.Info("http api listening", "addr", rt.addr.String())
	return rt, nil
}

func (a *App) timers(rt *runtime) scheduler.Timers {
	if a.cfg.Timers.Backend == "cron" {
		ct := scheduler.NewCronTimers(a.log)
		rt.closeTimers = ct.Close
		return ct
	}

	ctx, cancel := context.WithCancel(context.Background())
	tt := scheduler.NewTickerTimers(ctx)
	rt.closeTimers = func(context.Context) error {
		cancel()
		tt.Wait()
		return nil
	}
	return tt
}

func (a *App) addBuiltinJobs(ctx context.Context, rt *runtime, opts []scheduler.JobOption) error {
	opts = slices.Clip(opts)
	if iv := a.cfg.Heartbeat.Interval; iv > 0 {
		sched := rt.sched
		job, err := scheduler.NewJob(func() error {
			st := sched.Status()
			a.log.Info("heartbeat", "jobs", st.TotalJobs, "active", len(st.ActiveJobs))
			return nil
		}, scheduler.Every(iv), append(opts, scheduler.WithID("heartbeat"))...)
		if err != nil {
			return err
		}
		if err := sched.AddJob(job); err != nil {
			return err
		}
	}

	if rt.store != nil {
		job, err := scheduler.NewAsyncJob(rt.store.PruneJob(a.cfg.History.Retention), scheduler.Every(pruneEvery),
			append(opts, scheduler.WithID("history-prune"), scheduler.RunImmediately(), scheduler.WithContext(ctx))...)
		if err != nil {
			return err
		}
		if err := rt.sched.AddJob(job); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops intake first, then jobs, then the stores they write to.
func (rt *runtime) shutdown(ctx context.Context) error {
	var errs []error
	if rt.srv != nil {
		errs = append(errs, rt.srv.Shutdown(ctx))
	}
	if rt.sched != nil {
		rt.sched.Stop()
	}
	if rt.closeTimers != nil {
		errs = append(errs, rt.closeTimers(ctx))
	}
	if rt.notifier != nil {
		errs = append(errs, rt.notifier.Close(ctx))
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	err := errors.Join(errs...)
	if err != nil {
		rt.log.Error("shutdown", "error", err)
	} else {
		rt.log.Info("stopped")
	}
	return err
}
