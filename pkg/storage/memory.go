package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used in tests and when no InfluxDB endpoint
// is configured. Points are kept ordered per logical name.
type Memory struct {
	points map[string][]Point
	sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		points: make(map[string][]Point),
	}
}

func (m *Memory) WritePoint(ctx context.Context, p Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	list := m.points[p.LogicalName]
	list = append(list, p)
	// arrivals are normally in order, but simulator replays may not be
	if len(list) > 1 && list[len(list)-2].Time.After(p.Time) {
		sort.Slice(list, func(i, j int) bool { return list[i].Time.Before(list[j].Time) })
	}
	m.points[p.LogicalName] = list
	return nil
}

func (m *Memory) QueryRange(ctx context.Context, logicalNames []string, start, end time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.RLock()
	defer m.RUnlock()
	out := make(Series)
	for _, name := range logicalNames {
		for _, p := range m.points[name] {
			if p.Time.Before(start) || p.Time.After(end) {
				continue
			}
			out[name] = append(out[name], Sample{Time: p.Time, Value: p.Value})
		}
	}
	return out, nil
}

func (m *Memory) Close() {}

// Len reports the number of stored points across all logical names.
func (m *Memory) Len() int {
	m.RLock()
	defer m.RUnlock()
	n := 0
	for _, list := range m.points {
		n += len(list)
	}
	return n
}
