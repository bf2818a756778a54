package commands

import (
	"context"
	"encoding/json"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/commands/doctor"
	"github.com/hay-kot/shelter/internal/printer"
)

type DoctorCmd struct {
	flags  *Flags
	format string
	fix    bool
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Run health checks on your shelter setup",
		UsageText:   "shelter doctor [options]",
		Description: "Runs diagnostic checks on configuration, cache storage, and notifications.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "fix",
				Usage:       "purge expired cache entries",
				Destination: &cmd.fix,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	checks := []doctor.Check{
		doctor.NewConfigCheck(cmd.flags.Config, cmd.flags.ConfigPath),
	}

	// storage problems are reported as a failed check, not a command error
	if svc, err := cmd.flags.Service(ctx); err != nil {
		checks = append(checks, doctor.Failed("Storage", err))
	} else {
		cfg := svc.Config()
		checks = append(checks,
			doctor.NewStorageCheck(cfg.Cache.Backend, svc, svc.Storage()),
			doctor.NewExpiredCheck(svc.Cache(), cmd.fix),
			doctor.NewNotifyCheck(cfg.Notifications.Platform, svc.Notifier()),
		)
	}

	results := doctor.RunAll(ctx, checks)

	if cmd.format == "json" {
		return cmd.outputJSON(c, results)
	}

	return cmd.outputText(ctx, results)
}

func (cmd *DoctorCmd) outputJSON(c *cli.Command, results []doctor.Result) error {
	tally := doctor.Summarize(results)

	out := struct {
		Healthy bool            `json:"healthy"`
		Summary doctor.Tally    `json:"summary"`
		Checks  []doctor.Result `json:"checks"`
	}{
		Healthy: tally.Healthy(),
		Summary: tally,
		Checks:  results,
	}

	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (cmd *DoctorCmd) outputText(ctx context.Context, results []doctor.Result) error {
	p := printer.Ctx(ctx)

	for _, result := range results {
		p.Section(result.Name)

		for _, item := range result.Items {
			switch item.Status {
			case doctor.StatusPass:
				p.CheckItem(item.Label, item.Detail)
			case doctor.StatusWarn:
				p.WarnItem(item.Label, item.Detail)
			case doctor.StatusFail:
				p.FailItem(item.Label, item.Detail)
			}
		}

		p.Printf("")
	}

	tally := doctor.Summarize(results)
	p.Printf("Summary: %d passed, %d warnings, %d failed", tally.Passed, tally.Warned, tally.Failed)

	if tally.Fixable > 0 && !cmd.fix {
		p.Printf("Run 'shelter doctor --fix' to fix %d issue(s)", tally.Fixable)
	}

	if !tally.Healthy() {
		return cli.Exit("", 1)
	}

	return nil
}
