package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/shelter/internal/core/config"
)

type DocCmd struct {
	flags  *Flags
	render bool
}

func NewDocCmd(flags *Flags) *DocCmd {
	return &DocCmd{flags: flags}
}

func (cmd *DocCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "doc",
		Usage: "Documentation for integrators",
		Description: `Access documentation for shelter.

Use 'shelter doc api' to see the HTTP API that views talk to.
Use 'shelter doc config' to see the configuration reference with defaults.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "render",
				Aliases:     []string{"r"},
				Usage:       "render markdown for the terminal",
				Destination: &cmd.render,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "api",
				Usage:  "Show the HTTP API guide",
				Action: cmd.runAPI,
			},
			{
				Name:   "config",
				Usage:  "Show the configuration reference",
				Action: cmd.runConfig,
			},
		},
	})
	return app
}

func (cmd *DocCmd) runAPI(_ context.Context, c *cli.Command) error {
	return cmd.write(c.Root().Writer, apiGuide(cmd.addr()))
}

func (cmd *DocCmd) runConfig(_ context.Context, c *cli.Command) error {
	guide, err := configGuide()
	if err != nil {
		return err
	}
	return cmd.write(c.Root().Writer, guide)
}

func (cmd *DocCmd) addr() string {
	if cmd.flags.Config != nil {
		return cmd.flags.Config.Server.Addr
	}
	return config.DefaultConfig().Server.Addr
}

func (cmd *DocCmd) write(w io.Writer, md string) error {
	if cmd.render {
		out, err := renderMarkdown(md, 100)
		if err != nil {
			return err
		}
		md = out
	}
	_, err := fmt.Fprintln(w, md)
	return err
}

func apiGuide(addr string) string {
	base := "http://" + addr
	return `# Shelter HTTP API

Run ` + "`shelter serve`" + ` and point your views at ` + "`" + base + "`" + `.

## Offline cache

Cache a response while online so the view can render it later:
` + "```bash" + `
curl -X PUT ` + base + `/api/cache/feeds/home -d '{"items":[1,2,3]}'
` + "```" + `

Read it back. Entries older than 24 hours answer 404, the same as a miss:
` + "```bash" + `
curl ` + base + `/api/cache/feeds/home
# {"data":{"items":[1,2,3]}}
` + "```" + `

| Status | Meaning |
|--------|---------|
| 204 | value cached |
| 400 | body is not JSON |
| 404 | key missing or expired |
| 500 | storage failure, the previous value is untouched |
| 507 | storage quota exceeded |

## Connectivity

` + "```bash" + `
curl ` + base + `/api/status
# {"online":true,"permission":"default"}
` + "```" + `

The daemon shows a notice on every transition: the offline notice stays for
5 seconds, the back-online notice for 3.

## Notifications

Ask once. A granted or denied answer is remembered:
` + "```bash" + `
curl -X POST ` + base + `/api/notifications/permission
# {"granted":true}
` + "```" + `

Send. Without permission the request is accepted and nothing is shown:
` + "```bash" + `
curl -X POST ` + base + `/api/notifications \
  -d '{"title":"Sync complete","options":{"body":"3 new items","tag":"sync"}}'
# {"shown":true}
` + "```" + `

Shown notifications close themselves after 5 seconds.

## Operations

| Route | Description |
|-------|-------------|
| ` + "`GET /healthz`" + ` | process is up |
| ` + "`GET /readyz`" + ` | cache storage is reachable |
| ` + "`GET /metrics`" + ` | Prometheus metrics |
`
}

func configGuide() (string, error) {
	cfg := config.DefaultConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("encode defaults: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Shelter Configuration\n\n")
	b.WriteString("Location: `$XDG_CONFIG_HOME/shelter/config.yaml`. Every key is optional.\n\n")
	b.WriteString("## Defaults\n\n```yaml\n")
	b.Write(data)
	b.WriteString("```\n\n")
	b.WriteString(`## Choices

| Key | Values |
|-----|--------|
| ` + "`cache.backend`" + ` | file, sqlite, postgres, mysql, memory |
| ` + "`connectivity.probe`" + ` | tcp, http, manual |
| ` + "`notifications.platform`" + ` | terminal, desktop, kafka, none |

Connectivity messages are Go templates with ` + "`.Online`" + ` and ` + "`.At`" + ` (HH:MM).
Run ` + "`shelter config validate`" + ` after editing.
`)
	return b.String(), nil
}
