package joblog

import (
	"errors"
	"fmt"
	"time"
)

// Status is the coarse outcome recorded with an entry.
type Status string

// Entry statuses.
const (
	StatusInfo    Status = "INFO"
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Entry types written by the service.
const (
	TypeDiscovery  = "discovery"
	TypeExtraction = "extraction"
	TypeBatch      = "batch"
)

// Entry is one job log line.
type Entry struct {
	Type    string
	Status  Status
	Details string
	TS      time.Time
}

// Validate performs coarse validation on Entry payloads.
func (e Entry) Validate() error {
	if e.Type == "" {
		return errors.New("type is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Status {
	case StatusInfo, StatusSuccess, StatusError:
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
	return nil
}

// Info, Success and Error build entries stamped with the current time.
func Info(typ, format string, args ...any) Entry {
	return newEntry(typ, StatusInfo, format, args...)
}

// Success builds a SUCCESS entry.
func Success(typ, format string, args ...any) Entry {
	return newEntry(typ, StatusSuccess, format, args...)
}

// Error builds an ERROR entry.
func Error(typ, format string, args ...any) Entry {
	return newEntry(typ, StatusError, format, args...)
}

func newEntry(typ string, status Status, format string, args ...any) Entry {
	details := format
	if len(args) > 0 {
		details = fmt.Sprintf(format, args...)
	}
	return Entry{Type: typ, Status: status, Details: details, TS: time.Now().UTC()}
}
