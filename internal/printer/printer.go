// Package printer writes user-facing CLI output. Logs go through zerolog;
// everything a person is meant to read goes through a Printer.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hay-kot/criterio"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/internal/styles"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

type ctxKey struct{}

// Printer handles formatted output with colors and styles
type Printer struct {
	writer io.Writer
}

// New creates a new Printer that writes to the given writer
func New(w io.Writer) *Printer {
	return &Printer{
		writer: w,
	}
}

// NewContext returns a context with the printer attached
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, or creates a default one
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.writer
}

// FatalError prints a formatted error box and does NOT exit
// Caller should handle exit code
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.printValidationErrors(err, fieldErrs)
		return
	}

	bar := styles.ErrorStyle.Render("│")
	lines := []string{
		styles.ErrorStyle.Render("╭ Error"),
		bar + " " + styles.MutedStyle.Render(err.Error()),
		styles.ErrorStyle.Render("╵"),
	}

	p.write(strings.Join(lines, "\n"))
}

// printValidationErrors formats criterio.FieldErrors nicely
func (p *Printer) printValidationErrors(wrappedErr error, fieldErrs criterio.FieldErrors) {
	// the wrapping context, e.g. "load config: invalid config"
	errStr := wrappedErr.Error()
	fieldErrStr := fieldErrs.Error()

	errContext := ""
	if idx := strings.Index(errStr, fieldErrStr); idx > 0 {
		errContext = strings.TrimSuffix(errStr[:idx], ": ")
	}

	bar := styles.ErrorStyle.Render("│")

	p.write(styles.ErrorStyle.Render("╭ Validation Error"))
	if errContext != "" {
		p.write(bar + " " + styles.MutedStyle.Render(errContext))
		p.write(bar)
	}

	for _, fe := range fieldErrs {
		line := bar + " " + styles.ErrorStyle.Render(Cross) + " "
		if fe.Field != "" {
			line += styles.MutedStyle.Render(fe.Field + ": ")
		}
		line += fe.Err.Error()
		p.write(line)
	}

	p.write(styles.ErrorStyle.Render("╵"))
}

// Errorf prints an error message in red
func (p *Printer) Errorf(format string, args ...any) {
	p.write(styles.ErrorStyle.Render(Cross + " " + fmt.Sprintf(format, args...)))
}

// Successf prints a success message in green
func (p *Printer) Successf(format string, args ...any) {
	p.write(styles.SuccessStyle.Render(Check + " " + fmt.Sprintf(format, args...)))
}

// Success prints a success message with details on a separate line
func (p *Printer) Success(message string, details string) {
	p.write(styles.SuccessStyle.Render(Check + " " + message))
	if details != "" {
		p.write("  " + styles.MutedStyle.Render(details))
	}
}

// Infof prints an info message in gray
func (p *Printer) Infof(format string, args ...any) {
	p.write(styles.MutedStyle.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Warnf prints a warning message in yellow
func (p *Printer) Warnf(format string, args ...any) {
	p.write(styles.WarnStyle.Render(Dot + " " + fmt.Sprintf(format, args...)))
}

// Printf prints a plain message without colors
func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

// Bold makes text bold
func (p *Printer) Bold(text string) string {
	return styles.BoldStyle.Render(text)
}

// Section prints a section header (bold + underlined)
func (p *Printer) Section(title string) {
	p.write(styles.SectionStyle.Render(title))
}

// CheckItem prints a success item with green checkmark
func (p *Printer) CheckItem(label, detail string) {
	p.printItem(styles.SuccessStyle, Check, label, detail)
}

// WarnItem prints a warning item with yellow dot
func (p *Printer) WarnItem(label, detail string) {
	p.printItem(styles.WarnStyle, Dot, label, detail)
}

// FailItem prints a failure item with red cross
func (p *Printer) FailItem(label, detail string) {
	p.printItem(styles.ErrorStyle, Cross, label, detail)
}

func (p *Printer) printItem(style lipgloss.Style, symbol, label, detail string) {
	line := "  " + style.Render(symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.write(line)
}

// Notice prints a connectivity notice as a toast.
func (p *Printer) Notice(n connectivity.Notice) {
	footer := n.At.Format("15:04:05")
	p.write(styles.Toast(n.Message, "", footer, !n.Online))
}

// Explain prints why something could not be done.
func (p *Printer) Explain(msg string) {
	p.write(styles.Toast(msg, "", "", true))
}

func (p *Printer) write(line string) {
	_, _ = io.WriteString(p.writer, line+"\n")
}

// StatusOK returns a green checkmark with "ok" for use in tables.
func StatusOK() string {
	return styles.SuccessStyle.Render(Check) + " ok"
}

// StatusFailed returns a red cross with the given message for use in tables.
func StatusFailed(msg string) string {
	return styles.ErrorStyle.Render(Cross) + " " + msg
}

// StatusWarn returns a yellow dot with the given message for use in tables.
func StatusWarn(msg string) string {
	return styles.WarnStyle.Render(Dot) + " " + msg
}

// OnlineBadge renders the connectivity state.
func OnlineBadge(online bool) string {
	if online {
		return styles.OnlineBadge
	}
	return styles.OfflineBadge
}
