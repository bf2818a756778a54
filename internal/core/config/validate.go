package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/shelter/internal/core/connectivity"
	"github.com/hay-kot/shelter/pkg/tmpl"
)

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("data directory cannot be empty"))
	}

	if strings.TrimSpace(c.Cache.Namespace) == "" {
		errs = errs.Append("cache.namespace", fmt.Errorf("cannot be empty"))
	}
	if !oneOf(c.Cache.Backend, backends) {
		errs = errs.Append("cache.backend", fmt.Errorf("invalid backend %q, must be one of %s", c.Cache.Backend, strings.Join(backends, ", ")))
	}
	if (c.Cache.Backend == BackendPostgres || c.Cache.Backend == BackendMySQL) && c.Cache.DSN == "" {
		errs = errs.Append("cache.dsn", fmt.Errorf("required for the %s backend", c.Cache.Backend))
	}
	if c.Cache.QuotaBytes < 0 {
		errs = errs.Append("cache.quota_bytes", fmt.Errorf("cannot be negative"))
	}

	if !oneOf(c.Connectivity.Probe, probes) {
		errs = errs.Append("connectivity.probe", fmt.Errorf("invalid probe %q, must be one of %s", c.Connectivity.Probe, strings.Join(probes, ", ")))
	}
	if c.Connectivity.Probe != ProbeManual && len(c.Connectivity.Targets) == 0 {
		errs = errs.Append("connectivity.targets", fmt.Errorf("at least one target is required for the %s probe", c.Connectivity.Probe))
	}
	if c.Connectivity.Interval < 0 {
		errs = errs.Append("connectivity.interval", fmt.Errorf("cannot be negative"))
	}
	if c.Connectivity.Timeout < 0 {
		errs = errs.Append("connectivity.timeout", fmt.Errorf("cannot be negative"))
	}

	if !oneOf(c.Notifications.Platform, platforms) {
		errs = errs.Append("notifications.platform", fmt.Errorf("invalid platform %q, must be one of %s", c.Notifications.Platform, strings.Join(platforms, ", ")))
	}
	if c.Notifications.Platform == PlatformKafka && len(c.Notifications.Kafka.Brokers) == 0 {
		errs = errs.Append("notifications.kafka.brokers", fmt.Errorf("at least one broker is required for the kafka platform"))
	}

	if c.Server.Addr == "" {
		errs = errs.Append("server.addr", fmt.Errorf("cannot be empty"))
	}

	return errs.ToError()
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this renders message templates and checks file and
// tool access.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	if err := c.Validate(); err != nil {
		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			for _, e := range fieldErrs {
				errs = errs.Append(e.Field, e.Err)
			}
		} else {
			errs = errs.Append("", err)
		}
	}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			errs = errs.Append("config", fmt.Errorf("%s is a directory, not a file", configPath))
		} else if err != nil && !os.IsNotExist(err) {
			errs = errs.Append("config", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" {
		if info, err := os.Stat(c.DataDir); err == nil && !info.IsDir() {
			errs = errs.Append("data_dir", fmt.Errorf("%s exists but is not a directory", c.DataDir))
		}
	}

	sample := connectivity.NoticeData{Online: false, At: "12:00"}
	if _, err := tmpl.Render(c.Connectivity.OfflineMessage, sample); err != nil {
		errs = errs.Append("connectivity.offline_message", fmt.Errorf("template error: %w", err))
	}
	sample.Online = true
	if _, err := tmpl.Render(c.Connectivity.OnlineMessage, sample); err != nil {
		errs = errs.Append("connectivity.online_message", fmt.Errorf("template error: %w", err))
	}

	if c.Notifications.Platform == PlatformDesktop {
		if _, err := exec.LookPath("notify-send"); err != nil {
			errs = errs.Append("notifications.platform", fmt.Errorf("notify-send not found in PATH"))
		}
	}

	return errs.ToError()
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Cache.QuotaBytes == 0 && (c.Cache.Backend == BackendFile || c.Cache.Backend == BackendMemory) {
		warnings = append(warnings, ValidationWarning{
			Category: "cache",
			Item:     "quota_bytes",
			Message:  "no quota set, expired entries accumulate until purged",
		})
	}

	if c.Connectivity.Probe != ProbeManual && c.Connectivity.Timeout >= c.Connectivity.Interval {
		warnings = append(warnings, ValidationWarning{
			Category: "connectivity",
			Item:     "timeout",
			Message:  fmt.Sprintf("timeout %s is not shorter than interval %s", c.Connectivity.Timeout, c.Connectivity.Interval),
		})
	}

	if c.Notifications.Platform == PlatformNone {
		warnings = append(warnings, ValidationWarning{
			Category: "notifications",
			Item:     "platform",
			Message:  "platform is none, permission requests always fail",
		})
	}

	return warnings
}
