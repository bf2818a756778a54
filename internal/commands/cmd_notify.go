package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/printer"
	"github.com/hay-kot/shelter/internal/store/jsonfile"
)

type NotifyCmd struct {
	flags *Flags

	// send flags
	sendBody  string
	sendIcon  string
	sendBadge string
	sendTag   string
	sendExtra []string
	sendWait  bool

	// history flags
	historyLast   int
	historySince  time.Duration
	historyFormat string
}

// NewNotifyCmd creates a new notify command.
func NewNotifyCmd(flags *Flags) *NotifyCmd {
	return &NotifyCmd{flags: flags}
}

// Register adds the notify command to the application.
func (cmd *NotifyCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "notify",
		Usage: "Request permission for and send notifications",
		Description: `Notification commands.

Notifications are only shown once permission has been granted. A denied
permission is remembered and never asked again until 'shelter notify reset'
clears it.`,
		Commands: []*cli.Command{
			cmd.requestCmd(),
			cmd.resetCmd(),
			cmd.sendCmd(),
			cmd.historyCmd(),
		},
	})

	return app
}

func (cmd *NotifyCmd) requestCmd() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "Ask for notification permission",
		UsageText: "shelter notify request",
		Action:    cmd.runRequest,
	}
}

func (cmd *NotifyCmd) resetCmd() *cli.Command {
	return &cli.Command{
		Name:        "reset",
		Usage:       "Forget the stored permission decision",
		UsageText:   "shelter notify reset",
		Description: "Clears the remembered allow/deny answer so the next 'notify request' asks again. Restart a running daemon to pick it up.",
		Action:      cmd.runReset,
	}
}

func (cmd *NotifyCmd) sendCmd() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a notification",
		UsageText: "shelter notify send <title> [--body text] [--tag tag] [--extra key=value]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "body",
				Aliases:     []string{"b"},
				Usage:       "notification body",
				Destination: &cmd.sendBody,
			},
			&cli.StringFlag{
				Name:        "icon",
				Usage:       "icon path (default: notifications.icon)",
				Destination: &cmd.sendIcon,
			},
			&cli.StringFlag{
				Name:        "badge",
				Usage:       "badge path (default: notifications.badge)",
				Destination: &cmd.sendBadge,
			},
			&cli.StringFlag{
				Name:        "tag",
				Usage:       "replace any shown notification with the same tag",
				Destination: &cmd.sendTag,
			},
			&cli.StringSliceFlag{
				Name:        "extra",
				Usage:       "extra platform field as key=value (repeatable)",
				Destination: &cmd.sendExtra,
			},
			&cli.BoolFlag{
				Name:        "wait",
				Usage:       "wait until the notification is dismissed",
				Destination: &cmd.sendWait,
			},
		},
		Action: cmd.runSend,
	}
}

func (cmd *NotifyCmd) historyCmd() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show recent dispatch attempts",
		UsageText: "shelter notify history [--last N] [--since 1h]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "last",
				Aliases:     []string{"n"},
				Usage:       "number of records to show (0 for all)",
				Value:       20,
				Destination: &cmd.historyLast,
			},
			&cli.DurationFlag{
				Name:        "since",
				Usage:       "only records newer than this",
				Destination: &cmd.historySince,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.historyFormat,
			},
		},
		Action: cmd.runHistory,
	}
}

func (cmd *NotifyCmd) runRequest(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)
	cmd.flags.ServiceOptions.Explain = p.Explain

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	if svc.Notifier().RequestPermission(ctx) {
		p.Successf("Notifications allowed")
		return nil
	}

	if svc.Notifier().Supported() {
		p.Warnf("Notifications not allowed (%s)", svc.Notifier().Permission())
	}
	return cli.Exit("", 1)
}

func (cmd *NotifyCmd) runReset(ctx context.Context, _ *cli.Command) error {
	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	if err := svc.ResetConsent(ctx); err != nil {
		return err
	}

	printer.Ctx(ctx).Successf("Notification permission reset")
	return nil
}

func (cmd *NotifyCmd) runSend(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	title := strings.TrimSpace(c.Args().First())
	if title == "" {
		return fmt.Errorf("title is required")
	}

	extra, err := parseExtra(cmd.sendExtra)
	if err != nil {
		return err
	}

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	opts := notify.Options{
		Body:  cmd.sendBody,
		Icon:  cmd.sendIcon,
		Badge: cmd.sendBadge,
		Tag:   cmd.sendTag,
		Extra: extra,
	}

	if !svc.Notifier().SendNotification(ctx, title, opts) {
		p.Warnf("Notification not shown (permission: %s)", svc.Notifier().Permission())
		return nil
	}

	if cmd.sendWait {
		// the dismissal timer runs in this process
		select {
		case <-ctx.Done():
		case <-time.After(notify.AutoDismissAfter + 250*time.Millisecond):
		}
	}

	p.Successf("Notification sent")
	return nil
}

func parseExtra(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	extra := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --extra %q, expected key=value", pair)
		}
		extra[k] = v
	}
	return extra, nil
}

func (cmd *NotifyCmd) runHistory(ctx context.Context, c *cli.Command) error {
	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	var records []jsonfile.NoticeRecord
	if cmd.historySince > 0 {
		records, err = svc.Notices().ListSince(time.Now().Add(-cmd.historySince), cmd.historyLast)
	} else {
		records, err = svc.Notices().List(cmd.historyLast)
	}
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}

	out := c.Root().Writer

	if cmd.historyFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		printer.Ctx(ctx).Infof("No notifications sent")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tOUTCOME\tTIME")

	for _, r := range records {
		var outcome string
		switch r.Outcome {
		case notify.OutcomeShown:
			outcome = printer.StatusOK()
		case notify.OutcomeSuppressed:
			outcome = printer.StatusWarn(r.Reason)
		default:
			outcome = printer.StatusFailed(r.Reason)
		}

		title := r.Notification.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Notification.ID,
			title,
			outcome,
			r.RecordedAt.Format("2006-01-02 15:04:05"),
		)
	}

	return w.Flush()
}
