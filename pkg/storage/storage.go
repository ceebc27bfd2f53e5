package storage

import (
	"context"
	"time"

	"github.com/heatmon/heatmon/pkg/catalog"
)

// Measurement is the time-series measurement all points are written under.
const Measurement = "heatpump"

// Point is one normalized observation. Immutable once created.
type Point struct {
	RegisterID  string
	LogicalName string
	Class       catalog.ValueClass
	Unit        string
	Value       float64
	Time        time.Time
}

// Sample is one (timestamp, value) pair of a queried series.
type Sample struct {
	Time  time.Time
	Value float64
}

// Series holds queried samples keyed by logical name, each slice ordered by
// time ascending.
type Series map[string][]Sample

// Store is the time-series collaborator. Implementations must be safe for
// concurrent use.
type Store interface {
	WritePoint(ctx context.Context, p Point) error
	QueryRange(ctx context.Context, logicalNames []string, start, end time.Time) (Series, error)
	Close()
}
