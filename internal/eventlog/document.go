package eventlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/grove/internal/event"
	"github.com/roach88/grove/internal/legacy"
)

// DocumentVersion is the current event-format document version.
// Versions 1-3 are legacy tree documents routed through migration.
const DocumentVersion = 4

// Document is the persisted/export format: a version marker, an export
// timestamp, and the full ordered event log.
type Document struct {
	Version    int           `json:"_version"`
	ExportedAt string        `json:"_exportedAt"`
	Events     []event.Event `json:"events"`
}

// EncodeDocument renders events as a v4 export document.
func EncodeDocument(events []event.Event, exportedAt time.Time) ([]byte, error) {
	if events == nil {
		events = []event.Event{}
	}
	doc := Document{
		Version:    DocumentVersion,
		ExportedAt: event.FormatTimestamp(exportedAt),
		Events:     events,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// DecodeDocument parses an export document of any supported version
// into an event sequence. Version 4 documents are validated against
// the embedded schema; versions 1-3 are migrated from the legacy tree
// format before any derivation can occur.
func DecodeDocument(data []byte) ([]event.Event, error) {
	var probe struct {
		Version int `json:"_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	switch {
	case probe.Version == DocumentVersion:
		if err := validateDocument(data); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		if doc.Events == nil {
			doc.Events = []event.Event{}
		}
		return doc.Events, nil

	case probe.Version >= 1 && probe.Version < DocumentVersion:
		var doc legacy.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode legacy document: %w", err)
		}
		return legacy.Migrate(doc), nil

	default:
		return nil, fmt.Errorf("decode document: unsupported version %d", probe.Version)
	}
}
