package commands

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/tui"
)

type MonitorCmd struct {
	flags *Flags
}

// NewMonitorCmd creates a new monitor command
func NewMonitorCmd(flags *Flags) *MonitorCmd {
	return &MonitorCmd{flags: flags}
}

// Register adds the monitor command to the application
func (cmd *MonitorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "monitor",
		Usage:     "Watch connectivity and the offline cache",
		UsageText: "shelter monitor",
		Description: `Opens an interactive view of cached entries and connectivity.

Connectivity notices appear as toasts and close on their own. Press r to
probe now, p to purge expired entries, a to show expired entries and o to
flip the state when connectivity.probe is manual.

Running 'shelter' with no arguments opens the monitor.`,
		Action: cmd.run,
	})

	return app
}

// Run executes the monitor. Exported for use as default command.
func (cmd *MonitorCmd) Run(ctx context.Context, c *cli.Command) error {
	return cmd.run(ctx, c)
}

func (cmd *MonitorCmd) run(ctx context.Context, _ *cli.Command) error {
	notices := make(chan connectivity.Notice, 16)

	cmd.flags.ServiceOptions.Sink = connectivity.SinkFunc(func(n connectivity.Notice) {
		select {
		case notices <- n:
		default:
			log.Warn().Str("message", n.Message).Msg("monitor notice dropped")
		}
	})
	cmd.flags.ServiceOptions.Explain = func(msg string) {
		log.Info().Msg(msg)
	}

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	svc.StartBackground(ctx)

	m := tui.New(svc, tui.Options{Notices: notices})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}

	return nil
}
