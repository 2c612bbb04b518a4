// Package telegram delivers job failure alerts to a Telegram chat and answers
// a few operator commands from that chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dhruvv90/xnode-scheduler/pkg/retry"
	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

// Sender is the part of *bot.Bot the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var _ Sender = (*bot.Bot)(nil)

// NotifierOptions tunes alert delivery.
type NotifierOptions struct {
	// QueueSize bounds pending alerts; further alerts are dropped. Default 64.
	QueueSize int
	// Throttle is the minimum gap between two alerts for the same job.
	// Zero sends every failure.
	Throttle time.Duration
	// SendTimeout bounds one delivery including retries. Default 30s.
	SendTimeout time.Duration
	Retry       retry.Config
	Logger      *slog.Logger
}

type alert struct {
	jobID string
	text  string
}

// Notifier turns job failures into chat messages. Enqueueing never blocks the
// failing job: a single worker delivers messages in order.
type Notifier struct {
	sender   Sender
	chatID   int64
	opts     NotifierOptions
	throttle *Throttle
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan alert

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewNotifier creates a notifier and starts its worker.
func NewNotifier(sender Sender, chatID int64, opts NotifierOptions) *Notifier {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		sender:   sender,
		chatID:   chatID,
		opts:     opts,
		throttle: NewThrottle(opts.Throttle),
		logger:   opts.Logger.With("component", "telegram_notifier"),
		queue:    make(chan alert, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go n.worker()
	return n
}

// Handler returns a scheduler error handler that also logs every failure.
func (n *Notifier) Handler(logger *slog.Logger) scheduler.ErrorHandler {
	logFailure := scheduler.DefaultErrorHandler(logger)
	return func(err error) {
		logFailure(err)
		n.Notify(err)
	}
}

// Notify queues an alert for err. It returns false when the alert was
// throttled, dropped or the notifier is closed.
func (n *Notifier) Notify(err error) bool {
	if err == nil {
		return false
	}
	jobID := "unknown"
	var re *scheduler.RunError
	if errors.As(err, &re) {
		jobID = re.JobID
	}

	ok, suppressed := n.throttle.Allow(jobID)
	if !ok {
		return false
	}
	text := "xnode: " + err.Error()
	if suppressed > 0 {
		text += fmt.Sprintf(" (%d similar suppressed)", suppressed)
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return false
	}
	select {
	case n.queue <- alert{jobID: jobID, text: text}:
		return true
	default:
		n.dropped.Add(1)
		n.logger.Warn("alert queue full, dropping", "job", jobID)
		return false
	}
}

func (n *Notifier) worker() {
	defer close(n.done)
	for a := range n.queue {
		n.deliver(a)
	}
}

func (n *Notifier) deliver(a alert) {
	ctx, cancel := context.WithTimeout(n.ctx, n.opts.SendTimeout)
	defer cancel()

	cfg := n.opts.Retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		n.logger.Debug("retrying alert", "job", a.jobID, "attempt", attempt, "delay", delay, "error", err)
	}
	err := retry.DoIf(ctx, cfg, func(ctx context.Context) error {
		_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{ChatID: n.chatID, Text: a.text})
		return err
	}, func(err error) bool { return !errors.Is(err, context.Canceled) })
	if err != nil {
		n.logger.Error("alert not delivered", "job", a.jobID, "error", err)
		return
	}
	n.sent.Add(1)
}

// Sent returns how many alerts were delivered.
func (n *Notifier) Sent() int64 { return n.sent.Load() }

// Dropped returns how many alerts were lost to a full queue.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Close stops accepting alerts and waits for queued ones to be delivered.
// When ctx ends first, in-flight deliveries are cancelled.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}
