package doctor

import (
	"context"

	"github.com/hay-kot/shelter/internal/core/notify"
)

// Gate is the part of the notifier the notification check reads.
type Gate interface {
	Supported() bool
	Permission() notify.Permission
}

// NotifyCheck reports whether notifications can be shown.
type NotifyCheck struct {
	platform string
	gate     Gate
}

// NewNotifyCheck creates a new notification check.
func NewNotifyCheck(platform string, gate Gate) *NotifyCheck {
	return &NotifyCheck{platform: platform, gate: gate}
}

func (c *NotifyCheck) Name() string {
	return "Notifications"
}

func (c *NotifyCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	if !c.gate.Supported() {
		result.Items = append(result.Items, CheckItem{
			Label:  c.platform,
			Status: StatusWarn,
			Detail: notify.UnsupportedMessage,
		})
		return result
	}

	result.Items = append(result.Items, CheckItem{
		Label:  c.platform,
		Status: StatusPass,
		Detail: "supported",
	})

	item := CheckItem{Label: "Permission"}
	switch c.gate.Permission() {
	case notify.PermissionGranted:
		item.Status = StatusPass
		item.Detail = "granted"
	case notify.PermissionDenied:
		item.Status = StatusWarn
		item.Detail = "denied, notifications are never shown"
	default:
		item.Status = StatusWarn
		item.Detail = "not requested yet, run 'shelter notify request'"
	}
	result.Items = append(result.Items, item)

	return result
}
