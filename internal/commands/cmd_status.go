package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/printer"
)

type StatusCmd struct {
	flags  *Flags
	format string
}

// NewStatusCmd creates a new status command
func NewStatusCmd(flags *Flags) *StatusCmd {
	return &StatusCmd{flags: flags}
}

// Register adds the status command to the application
func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "status",
		Usage:       "Show connectivity, cache and notification state",
		UsageText:   "shelter status [--format json]",
		Description: "Probes connectivity once and reports it with the cache size and the notification permission.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})

	return app
}

type statusJSON struct {
	Online     bool   `json:"online"`
	Probe      string `json:"probe"`
	Backend    string `json:"backend"`
	Entries    int    `json:"entries"`
	Expired    int    `json:"expired"`
	Platform   string `json:"platform"`
	Supported  bool   `json:"supported"`
	Permission string     `json:"permission"`
	LastOnline *time.Time `json:"last_online,omitempty"`
}

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	cfg := svc.Config()
	st := statusJSON{
		Online:     svc.Check(ctx),
		Probe:      cfg.Connectivity.Probe,
		Backend:    cfg.Cache.Backend,
		Platform:   cfg.Notifications.Platform,
		Supported:  svc.Notifier().Supported(),
		Permission: string(svc.Notifier().Permission()),
	}
	for _, e := range svc.Cache().Entries() {
		st.Entries++
		if !e.Fresh {
			st.Expired++
		}
	}

	if st.Online {
		if err := svc.RecordOnline(ctx); err != nil {
			log.Warn().Err(err).Msg("last online time not recorded")
		}
	}
	last, ok, err := svc.LastOnline()
	if err != nil {
		log.Warn().Err(err).Msg("last online time unreadable")
	}
	if ok {
		st.LastOnline = &last.At
	}

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	p := printer.Ctx(ctx)
	p.Printf("%s  %s probe", printer.OnlineBadge(st.Online), st.Probe)
	if !st.Online && st.LastOnline != nil {
		p.Printf("last online %s ago", time.Since(*st.LastOnline).Truncate(time.Second))
	}
	p.Printf("")
	p.Section("Cache")
	p.Printf("  backend  %s", st.Backend)
	p.Printf("  entries  %d (%d expired)", st.Entries, st.Expired)
	p.Printf("")
	p.Section("Notifications")
	p.Printf("  platform    %s", st.Platform)
	if st.Supported {
		p.Printf("  permission  %s", st.Permission)
	} else {
		p.Printf("  permission  %s", fmt.Sprintf("%s (unsupported here)", st.Permission))
	}

	return nil
}
