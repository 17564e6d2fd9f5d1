package archive

import (
	"context"
	"time"
)

// Archiver keeps the raw report payloads of an ingestion for replay.
// Archive returns the location the payloads were written under.
type Archiver interface {
	Archive(ctx context.Context, req Request) (string, error)
	Preflight(ctx context.Context) error
}

// Request identifies one ingestion's payloads.
type Request struct {
	RunID     string
	Project   string
	Timestamp time.Time
	Payloads  [][]byte
}

// Noop discards payloads. Used when archiving is disabled.
type Noop struct{}

var _ Archiver = Noop{}

func (Noop) Archive(context.Context, Request) (string, error) { return "", nil }

func (Noop) Preflight(context.Context) error { return nil }
