// Package doctor runs the health checks behind 'shelter doctor'.
package doctor

import (
	"context"
	"fmt"
	"time"
)

// DefaultCheckTimeout bounds a single check. Storage checks may dial a
// database server.
const DefaultCheckTimeout = 10 * time.Second

// Status represents the result status of a check item.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// CheckItem represents a single line item within a check result.
type CheckItem struct {
	Label   string `json:"label"`
	Status  Status `json:"-"`
	Detail  string `json:"detail,omitempty"`
	Fixable bool   `json:"fixable,omitempty"`

	// For JSON output
	StatusStr string `json:"status"`
}

// Result represents the outcome of a check containing multiple items.
type Result struct {
	Name  string      `json:"name"`
	Items []CheckItem `json:"items"`
}

// Check defines the interface for a doctor check.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// RunAll runs every check with its own timeout. A check that panics is
// reported as failed and the remaining checks still run.
func RunAll(ctx context.Context, checks []Check) []Result {
	results := make([]Result, 0, len(checks))
	for _, check := range checks {
		result := runOne(ctx, check)
		for i := range result.Items {
			result.Items[i].StatusStr = result.Items[i].Status.String()
		}
		results = append(results, result)
	}
	return results
}

func runOne(ctx context.Context, check Check) (result Result) {
	ctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = Result{
				Name:  check.Name(),
				Items: []CheckItem{{Label: "Run", Status: StatusFail, Detail: fmt.Sprintf("check panicked: %v", r)}},
			}
		}
	}()

	return check.Run(ctx)
}

// Tally counts item outcomes across results.
type Tally struct {
	Passed  int `json:"passed"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
	Fixable int `json:"fixable"`
}

// Healthy reports whether no item failed. Warnings do not count.
func (t Tally) Healthy() bool { return t.Failed == 0 }

// Summarize tallies the results. Only warned or failed items count as
// fixable.
func Summarize(results []Result) Tally {
	var t Tally
	for _, r := range results {
		for _, item := range r.Items {
			switch item.Status {
			case StatusPass:
				t.Passed++
			case StatusWarn:
				t.Warned++
			case StatusFail:
				t.Failed++
			}
			if item.Fixable && item.Status != StatusPass {
				t.Fixable++
			}
		}
	}
	return t
}

// Failed returns a check that always reports err. It stands in for a check
// that could not be built, such as storage that failed to open.
func Failed(name string, err error) Check {
	return failedCheck{name: name, err: err}
}

type failedCheck struct {
	name string
	err  error
}

func (c failedCheck) Name() string { return c.name }

func (c failedCheck) Run(context.Context) Result {
	return Result{
		Name:  c.name,
		Items: []CheckItem{{Label: "Open", Status: StatusFail, Detail: c.err.Error()}},
	}
}
