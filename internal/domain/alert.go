package domain

import (
	"context"
	"time"
)

// AlertKind classifies operator notifications.
type AlertKind string

const (
	AlertBreakerOpened         AlertKind = "breaker_opened"
	AlertInvestigationFellBack AlertKind = "investigation_fell_back"
	AlertEndpointDisabled      AlertKind = "endpoint_disabled"
)

// Alert is one operator notification.
type Alert struct {
	Kind      AlertKind         `json:"kind"`
	Subject   string            `json:"subject"`
	Detail    string            `json:"detail"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier delivers alerts to an operator channel. Delivery is best-effort;
// a failing notifier never blocks or fails the operation that raised the
// alert.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
	Name() string
}
