// Package events publishes registry lifecycle events to a Redis stream.
package events

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStream is the Redis stream registry events are added to.
const DefaultStream = "source-registry-events"

// EventType identifies a registry event.
type EventType string

const (
	ScanCompleted    EventType = "SCAN_COMPLETED"
	AssetActivated   EventType = "ASSET_ACTIVATED"
	AssetDeactivated EventType = "ASSET_DEACTIVATED"
)

// RegistryEvent is the envelope for every event.
type RegistryEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	// SubjectID is the source id for scans and the asset id for activation.
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// ScanCompletedPayload summarizes a finished seed scan.
type ScanCompletedPayload struct {
	SeedName      string   `json:"seed_name"`
	Success       bool     `json:"success"`
	DurationMs    int64    `json:"duration_ms"`
	AssetsScanned int      `json:"assets_scanned"`
	AssetsSkipped int      `json:"assets_skipped"`
	NodesMapped   int      `json:"nodes_mapped"`
	Errors        []string `json:"errors,omitempty"`
}

// AssetTogglePayload describes an activation change.
type AssetTogglePayload struct {
	SourceID string `json:"source_id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
}
