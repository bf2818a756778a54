package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/observability"
	"github.com/hay-kot/shelter/internal/printer"
)

type ServeCmd struct {
	flags *Flags
	addr  string
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the shelter daemon",
		UsageText: "shelter serve [--addr host:port]",
		Description: `Starts the connectivity observer and serves the local HTTP API.

Routes:
  PUT  /api/cache/{key}                 cache a JSON value
  GET  /api/cache/{key}                 read a fresh cached value
  GET  /api/status                      connectivity and permission state
  POST /api/notifications/permission    ask for notification permission
  POST /api/notifications               send a notification
  GET  /healthz, /readyz, /metrics

Connectivity notices are printed to stderr as they happen.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (overrides server.addr)",
				Sources:     cli.EnvVars("SHELTER_ADDR"),
				Destination: &cmd.addr,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	if cmd.addr != "" && cmd.flags.Config != nil {
		cmd.flags.Config.Server.Addr = cmd.addr
	}

	cmd.flags.ServiceOptions.Metrics = observability.NewMetrics()
	cmd.flags.ServiceOptions.Sink = connectivity.SinkFunc(p.Notice)
	cmd.flags.ServiceOptions.Explain = p.Explain

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p.Infof("listening on %s", svc.Config().Server.Addr)
	return svc.Run(ctx)
}
