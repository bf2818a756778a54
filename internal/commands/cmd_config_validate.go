package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/core/config"
	"github.com/hay-kot/shelter/internal/printer"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
	strict bool
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config command group to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate configuration file",
				UsageText: "shelter config validate [--strict] [--format json]",
				Description: `Validates the configuration file: backend and probe settings, notice
message templates, the data directory and the desktop notifier binary.

A missing config file is not an error; defaults apply. With --strict,
warnings fail the command too.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
					&cli.BoolFlag{
						Name:        "strict",
						Usage:       "treat warnings as errors",
						Destination: &cmd.strict,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

// validation is the outcome of validating the loaded config.
type validation struct {
	Source   string                     `json:"source"`
	Valid    bool                       `json:"valid"`
	Errors   []validationError          `json:"errors,omitempty"`
	Warnings []config.ValidationWarning `json:"warnings,omitempty"`
}

type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	v := validation{
		Source:   configSource(cmd.flags.ConfigPath),
		Warnings: cfg.Warnings(),
	}
	for _, fe := range extractFieldErrors(cfg.ValidateDeep(cmd.flags.ConfigPath)) {
		v.Errors = append(v.Errors, validationError{Field: fe.Field, Message: fe.Err.Error()})
	}
	v.Valid = len(v.Errors) == 0 && (!cmd.strict || len(v.Warnings) == 0)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else {
		cmd.printText(printer.Ctx(ctx), v)
	}

	if !v.Valid {
		return cli.Exit("", 1)
	}
	return nil
}

// configSource describes where settings were read from.
func configSource(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return "defaults (" + path + " not found)"
	}
	return path
}

// extractFieldErrors extracts field errors from a validation error.
func extractFieldErrors(err error) criterio.FieldErrors {
	if err == nil {
		return nil
	}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return criterio.FieldErrors{{Err: err}}
}

func (cmd *ConfigValidateCmd) printText(p *printer.Printer, v validation) {
	p.Printf("Source: %s", v.Source)
	p.Printf("")

	if len(v.Errors) > 0 {
		p.Section("Errors")
		for _, e := range v.Errors {
			if e.Field != "" {
				p.Printf("  %s %s: %s", printer.Cross, e.Field, e.Message)
			} else {
				p.Printf("  %s %s", printer.Cross, e.Message)
			}
		}
		p.Printf("")
	}

	if len(v.Warnings) > 0 {
		p.Section("Warnings")
		for _, w := range v.Warnings {
			field := w.Category
			if w.Item != "" {
				field += "." + w.Item
			}
			p.Printf("  %s %s: %s", printer.Dot, field, w.Message)
		}
		p.Printf("")
	}

	switch {
	case v.Valid && len(v.Warnings) > 0:
		p.Successf("Configuration is valid (%d warning(s))", len(v.Warnings))
	case v.Valid:
		p.Successf("Configuration is valid")
	default:
		p.Errorf("%d error(s), %d warning(s)", len(v.Errors), len(v.Warnings))
	}
}
