package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dhruvv90/xnode-scheduler/internal/history"
	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

// JobRegistry is what the commands need from the scheduler.
type JobRegistry interface {
	Status() scheduler.Status
	StartJob(id string) error
	StopJob(id string) error
}

// RunLister reads recorded runs.
type RunLister interface {
	Recent(ctx context.Context, jobID string, limit int) ([]history.Run, error)
}

const helpText = `/status - list jobs
/runs <id> [n] - last runs of a job
/pause <id> - stop a job
/resume <id> - start a job again`

// Commands answers operator commands sent from the alert chat. Messages from
// any other chat are refused.
type Commands struct {
	jobs   JobRegistry
	runs   RunLister
	chatID int64
	logger *slog.Logger
}

// NewCommands creates the command set. runs may be nil when history is off.
func NewCommands(jobs JobRegistry, runs RunLister, chatID int64, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{jobs: jobs, runs: runs, chatID: chatID, logger: logger.With("component", "telegram_commands")}
}

// Handler adapts Reply to the bot's update callback.
func (c *Commands) Handler() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, upd *models.Update) {
		msg := upd.Message
		if msg == nil {
			return
		}
		reply, ok := c.Reply(ctx, msg.Chat.ID, msg.Text)
		if !ok {
			return
		}
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: reply}); err != nil {
			c.logger.Warn("reply failed", "chat", msg.Chat.ID, "error", err)
		}
	}
}

// Reply computes the answer to text sent from chatID. ok is false when the
// message is not a command and should be ignored.
func (c *Commands) Reply(ctx context.Context, chatID int64, text string) (reply string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	if chatID != c.chatID {
		c.logger.Warn("command from foreign chat", "chat", chatID)
		return "access denied", true
	}

	fields := strings.Fields(text)
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	args := fields[1:]

	switch cmd {
	case "start", "help":
		return helpText, true
	case "status":
		return c.status(), true
	case "runs":
		return c.recentRuns(ctx, args), true
	case "pause":
		return c.toggle(args, "stopped", c.jobs.StopJob), true
	case "resume":
		return c.toggle(args, "started", c.jobs.StartJob), true
	default:
		return "unknown command, try /help", true
	}
}

func (c *Commands) status() string {
	st := c.jobs.Status()
	var sb strings.Builder
	fmt.Fprintf(&sb, "jobs: %d (active %d, idle %d)", st.TotalJobs, len(st.ActiveJobs), len(st.IdleJobs))
	for _, group := range [][]*scheduler.Job{st.ActiveJobs, st.IdleJobs} {
		for _, j := range group {
			fmt.Fprintf(&sb, "\n%s %s every %s", j.Status(), j.ID(), j.Period())
		}
	}
	return sb.String()
}

func (c *Commands) recentRuns(ctx context.Context, args []string) string {
	if c.runs == nil {
		return "run history is disabled"
	}
	if len(args) == 0 {
		return "usage: /runs <id> [n]"
	}
	limit := 5
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return "n must be a positive number"
		}
		limit = n
	}

	runs, err := c.runs.Recent(ctx, args[0], limit)
	if err != nil {
		c.logger.Error("read runs", "job", args[0], "error", err)
		return "could not read run history"
	}
	if len(runs) == 0 {
		return "no runs recorded for " + args[0]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "last %d runs of %s:", len(runs), args[0])
	for _, r := range runs {
		outcome := "ok"
		if r.Failed() {
			outcome = "FAILED: " + r.Err
		}
		fmt.Fprintf(&sb, "\n%s %s %s", r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration, outcome)
	}
	return sb.String()
}

func (c *Commands) toggle(args []string, done string, fn func(string) error) string {
	if len(args) != 1 {
		return "usage: /pause <id> or /resume <id>"
	}
	if err := fn(args[0]); err != nil {
		return err.Error()
	}
	c.logger.Info("job toggled from chat", "job", args[0], "state", done)
	return fmt.Sprintf("job %s %s", args[0], done)
}
