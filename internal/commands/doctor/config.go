package doctor

import (
	"context"
	"errors"
	"os"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/shelter/internal/core/config"
)

// ConfigCheck validates the loaded configuration and reports warnings.
type ConfigCheck struct {
	config     *config.Config
	configPath string
}

// NewConfigCheck creates a configuration check for the file at configPath.
func NewConfigCheck(cfg *config.Config, configPath string) *ConfigCheck {
	return &ConfigCheck{config: cfg, configPath: configPath}
}

func (c *ConfigCheck) Name() string {
	return "Configuration"
}

func (c *ConfigCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if c.config == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Config loaded",
			Status: StatusFail,
			Detail: "configuration not loaded",
		})
		return result
	}

	result.Items = append(result.Items, c.fileItem())

	err := c.config.ValidateDeep(c.configPath)
	if err == nil {
		result.Items = append(result.Items, CheckItem{
			Label:  "Settings valid",
			Status: StatusPass,
			Detail: "backend " + c.config.Cache.Backend + ", probe " + c.config.Connectivity.Probe,
		})
	}

	var fieldErrs criterio.FieldErrors
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			label := fe.Field
			if label == "" {
				label = "validation"
			}
			result.Items = append(result.Items, CheckItem{Label: label, Status: StatusFail, Detail: fe.Err.Error()})
		}
	default:
		result.Items = append(result.Items, CheckItem{Label: "validation", Status: StatusFail, Detail: err.Error()})
	}

	for _, w := range c.config.Warnings() {
		label := w.Category + "." + w.Item
		if w.Item == "" {
			label = w.Category
		}
		result.Items = append(result.Items, CheckItem{Label: label, Status: StatusWarn, Detail: w.Message})
	}

	return result
}

// fileItem reports whether settings come from a file or from defaults.
func (c *ConfigCheck) fileItem() CheckItem {
	info, err := os.Stat(c.configPath)
	switch {
	case err == nil && !info.IsDir():
		return CheckItem{Label: "Config file", Status: StatusPass, Detail: c.configPath}
	case errors.Is(err, os.ErrNotExist):
		return CheckItem{Label: "Config file", Status: StatusPass, Detail: "not found, using defaults"}
	case err != nil:
		return CheckItem{Label: "Config file", Status: StatusFail, Detail: err.Error()}
	default:
		return CheckItem{Label: "Config file", Status: StatusFail, Detail: c.configPath + " is a directory"}
	}
}
