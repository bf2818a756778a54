package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hay-kot/shelter/internal/core/offline"
	"github.com/hay-kot/shelter/internal/printer"
)

type CacheCmd struct {
	flags *Flags

	// put flags
	putFile string

	// get flags
	getRender bool
	getStale  bool

	// ls flags
	lsMatch  string
	lsAll    bool
	lsFormat string

	// purge flags
	purgeMatch string
}

// NewCacheCmd creates a new cache command.
func NewCacheCmd(flags *Flags) *CacheCmd {
	return &CacheCmd{flags: flags}
}

// Register adds the cache command to the application.
func (cmd *CacheCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "cache",
		Usage: "Read and write the offline cache",
		Description: `Commands for the offline cache.

Every value is stored as JSON in a single namespaced document together with
the time it was written. Entries older than 24 hours read as absent but stay
in storage until purged.`,
		Commands: []*cli.Command{
			cmd.putCmd(),
			cmd.getCmd(),
			cmd.lsCmd(),
			cmd.rmCmd(),
			cmd.purgeCmd(),
		},
	})

	return app
}

func (cmd *CacheCmd) putCmd() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Cache a JSON value under a key",
		UsageText: "shelter cache put <key> [json]",
		Description: `Caches a JSON value. The value can be provided as:
- A command-line argument
- From a file with -f/--file
- From stdin if no argument is provided

Examples:
  shelter cache put user/profile '{"name":"ada"}'
  curl -s https://api.example.com/feed | shelter cache put feed`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read value from file",
				Destination: &cmd.putFile,
			},
		},
		Action: cmd.runPut,
	}
}

func (cmd *CacheCmd) getCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print a cached value",
		UsageText: "shelter cache get <key> [--render] [--stale]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "render",
				Aliases:     []string{"r"},
				Usage:       "render the value as highlighted markdown",
				Destination: &cmd.getRender,
			},
			&cli.BoolFlag{
				Name:        "stale",
				Usage:       "print the value even if it has expired",
				Destination: &cmd.getStale,
			},
		},
		Action: cmd.runGet,
	}
}

func (cmd *CacheCmd) lsCmd() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "List cached keys",
		UsageText: "shelter cache ls [--match <glob>] [--all]",
		Description: `Lists fresh entries with their age. Use --all to include expired entries.

Keys can be filtered with a doublestar glob, e.g. --match 'feeds/**'.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "match",
				Aliases:     []string{"m"},
				Usage:       "only keys matching this glob",
				Destination: &cmd.lsMatch,
			},
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "include expired entries",
				Destination: &cmd.lsAll,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.lsFormat,
			},
		},
		Action: cmd.runLs,
	}
}

func (cmd *CacheCmd) rmCmd() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Usage:     "Remove a cached key",
		UsageText: "shelter cache rm <key>",
		Action:    cmd.runRm,
	}
}

func (cmd *CacheCmd) purgeCmd() *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Remove expired entries from storage",
		UsageText: "shelter cache purge [--match <glob>]",
		Description: `Removes entries older than 24 hours. Fresh entries are never removed.

Use --match to limit the purge to keys matching a doublestar glob.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "match",
				Aliases:     []string{"m"},
				Usage:       "only keys matching this glob",
				Destination: &cmd.purgeMatch,
			},
		},
		Action: cmd.runPurge,
	}
}

func (cmd *CacheCmd) runPut(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("key is required")
	}

	value, err := cmd.readValue(c)
	if err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	if err := svc.Cache().CacheData(ctx, key, value); err != nil {
		if errors.Is(err, offline.ErrQuotaExceeded) {
			return fmt.Errorf("%w (run 'shelter cache purge' to free space)", err)
		}
		return err
	}

	p.Successf("Cached %s (%d bytes)", key, len(value))
	return nil
}

func (cmd *CacheCmd) readValue(c *cli.Command) ([]byte, error) {
	if cmd.putFile != "" {
		data, err := os.ReadFile(cmd.putFile)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return data, nil
	}

	if c.Args().Len() > 1 {
		return []byte(c.Args().Get(1)), nil
	}

	data, err := io.ReadAll(c.Root().Reader)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func (cmd *CacheCmd) runGet(ctx context.Context, c *cli.Command) error {
	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("key is required")
	}

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	data, ok := svc.Cache().GetCachedData(key)
	if !ok && cmd.getStale {
		data, ok = findEntry(svc.Cache().Entries(), key)
		if ok {
			printer.Ctx(ctx).Warnf("%s has expired", key)
		}
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, offline.ErrNotFound)
	}

	out := c.Root().Writer

	if cmd.getRender {
		rendered, err := renderJSON(data, 100)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	}

	_, err = fmt.Fprintln(out, string(indentJSON(data)))
	return err
}

func findEntry(entries []offline.EntryInfo, key string) (json.RawMessage, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Entry.Data, true
		}
	}
	return nil, false
}

func indentJSON(data json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return data
	}
	return buf
}

type entryJSON struct {
	Key       string    `json:"key"`
	WrittenAt time.Time `json:"written_at"`
	AgeSecs   int64     `json:"age_seconds"`
	Fresh     bool      `json:"fresh"`
	Bytes     int       `json:"bytes"`
}

func (cmd *CacheCmd) runLs(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	var rows []entryJSON
	var expired int
	for _, e := range svc.Cache().Entries() {
		if !offline.MatchKey(cmd.lsMatch, e.Key) {
			continue
		}
		if !e.Fresh {
			expired++
			if !cmd.lsAll {
				continue
			}
		}
		age, _ := svc.Cache().Age(e.Key)
		rows = append(rows, entryJSON{
			Key:       e.Key,
			WrittenAt: e.Entry.WrittenAt(),
			AgeSecs:   int64(age / time.Second),
			Fresh:     e.Fresh,
			Bytes:     len(e.Entry.Data),
		})
	}

	out := c.Root().Writer

	if cmd.lsFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		p.Infof("No cached entries")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "KEY\tSTATUS\tAGE\tSIZE")

		for _, r := range rows {
			status := printer.StatusOK()
			if !r.Fresh {
				status = printer.StatusWarn("expired")
			}
			age := time.Duration(r.AgeSecs) * time.Second
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.Key, status, age, r.Bytes)
		}

		_ = w.Flush()
	}

	if expired > 0 && !cmd.lsAll {
		p.Printf("")
		p.Printf("%d expired entr(ies) hidden. Run 'shelter cache purge' to remove them", expired)
	}

	return nil
}

func (cmd *CacheCmd) runRm(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("key is required")
	}

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	if err := svc.Cache().Delete(ctx, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}

	p.Successf("Removed %s", key)
	return nil
}

func (cmd *CacheCmd) runPurge(ctx context.Context, _ *cli.Command) error {
	p := printer.Ctx(ctx)

	svc, err := cmd.flags.Service(ctx)
	if err != nil {
		return err
	}

	count, err := svc.Cache().Purge(ctx, cmd.purgeMatch)
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}

	if count == 0 {
		p.Infof("No expired entries to purge")
		return nil
	}

	p.Successf("Purged %d expired entr(ies)", count)
	return nil
}
