// Package notify emits change records across a configured set of
// delivery channels and keeps a bounded history of per-channel outcomes
// (C9). Grounded on groblegark-gastown's internal/notify (labeled-field
// message body formatting) and internal/slackbot (webhook-shaped chat
// channel), with the delivery-record ring buffer adapted from
// meigma-blob's registry/oras authHeaderCache (container/list + map),
// generalized from LRU-by-access to FIFO-by-insertion.
package notify

import (
	"context"
	"fmt"
	"time"
)

// ChangeRecord is the single fact broadcast to every channel: a version
// bump produced by the version analyzer (C8).
type ChangeRecord struct {
	Target      string
	Version     string
	BaseVersion string
	Severity    string // version.Bump.String(), e.g. "major"
	Summary     string
}

// Outcome is a channel's result for one send attempt.
type Outcome struct {
	OK        bool
	MessageID string
	Err       error
}

// Channel is the capability set every delivery channel implements.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, change ChangeRecord, template string) Outcome
}

// formatBody renders change into a labeled-field message body, the same
// shape as groblegark-gastown's formatResolutionBody but with fields
// renamed for schema-version changes instead of resolved decisions.
func formatBody(change ChangeRecord) string {
	body := fmt.Sprintf("Change: %s\nVersion: %s\nSeverity: %s", change.Target, change.Version, change.Severity)
	if change.BaseVersion != "" {
		body += fmt.Sprintf("\nPrevious: %s", change.BaseVersion)
	}
	if change.Summary != "" {
		body += fmt.Sprintf("\nSummary: %s", change.Summary)
	}
	return body
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// DeliveryRecord is one logged send attempt. EventID ties every channel's
// record for the same broadcast together, the way distribution-distribution's
// notification bridge stamps an event ID per envelope.
type DeliveryRecord struct {
	EventID   string
	Timestamp time.Time
	Channel   string
	Change    ChangeRecord
	Outcome   Outcome
}
