package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/heatmon/heatmon/pkg/alarm"
	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/metrics"
	"github.com/heatmon/heatmon/pkg/normalize"
	"github.com/heatmon/heatmon/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Pipeline turns raw gateway messages into canonical points. Safe for
// concurrent callers: the catalog is immutable, the normalizer is pure and
// the store handles its own synchronization.
type Pipeline struct {
	catalog *catalog.Catalog
	norm    *normalize.Normalizer
	store   storage.Store
	cache   *Cache
	alarms  *alarm.Tracker
	metrics *metrics.Metrics
}

func New(cat *catalog.Catalog, store storage.Store, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		catalog: cat,
		norm:    normalize.New(),
		store:   store,
		cache:   NewCache(),
		alarms:  alarm.NewTracker(),
		metrics: m,
	}
}

// Ingest resolves and normalizes one raw observation and writes the point.
// Unknown registers and rejected values drop the observation and return
// (nil, nil); only a storage failure is an error, and it is retryable by
// redelivering the message. No buffering happens here: at most one write per
// arrival.
func (p *Pipeline) Ingest(ctx context.Context, registerID, raw string, arrival time.Time) (*storage.Point, error) {
	id := strings.ToUpper(strings.TrimSpace(registerID))

	desc, ok := p.catalog.Lookup(id)
	if !ok {
		// gateways broadcast many registers a profile does not care about
		logrus.WithField("register", id).Debug("unknown register")
		p.metrics.UnknownRegisters.Inc()
		return nil, nil
	}

	value, err := p.norm.Normalize(desc.Class, raw)
	if err != nil {
		var rejected *normalize.RejectError
		if errors.As(err, &rejected) {
			logrus.WithFields(logrus.Fields{
				"register": id,
				"name":     desc.LogicalName,
				"raw":      raw,
				"reason":   rejected.Reason,
			}).Warn("value rejected")
			p.metrics.ValuesRejected.WithLabelValues(string(rejected.Reason)).Inc()
			return nil, nil
		}
		return nil, err
	}

	point := storage.Point{
		RegisterID:  id,
		LogicalName: desc.LogicalName,
		Class:       desc.Class,
		Unit:        desc.Unit,
		Value:       value,
		Time:        arrival.UTC(),
	}

	if err := p.store.WritePoint(ctx, point); err != nil {
		p.metrics.StorageErrors.Inc()
		return nil, fmt.Errorf("error storing %s: %w", desc.LogicalName, err)
	}

	p.cache.Set(point)
	p.metrics.PointsIngested.Inc()
	p.metrics.LastIngestUnix.Set(float64(point.Time.Unix()))

	if desc.Class == catalog.ClassAlarm {
		p.observeAlarm(int(value), point.Time)
	}

	logrus.WithFields(logrus.Fields{
		"name":  desc.LogicalName,
		"value": value,
		"unit":  desc.Unit,
	}).Debug("stored metric")

	return &point, nil
}

// HandleMessage ingests one transport delivery, extracting the register id
// from the topic.
func (p *Pipeline) HandleMessage(ctx context.Context, topic, payload string, arrival time.Time) error {
	id, ok := RegisterIDFromTopic(topic)
	if !ok {
		logrus.WithField("topic", topic).Debug("ignoring message without register id")
		return nil
	}
	_, err := p.Ingest(ctx, id, payload, arrival)
	return err
}

func (p *Pipeline) observeAlarm(code int, at time.Time) {
	changed := p.alarms.Observe(code, at)
	if code != 0 {
		p.metrics.AlarmActive.Set(1)
		if changed {
			desc, _ := p.catalog.AlarmDescription(code)
			logrus.WithFields(logrus.Fields{"code": code, "description": desc}).Warn("alarm raised")
		}
		return
	}
	p.metrics.AlarmActive.Set(0)
	if changed {
		logrus.Info("alarm cleared")
	}
}

// Latest returns the most recent ingested point for a logical name.
func (p *Pipeline) Latest(logicalName string) (storage.Point, bool) {
	return p.cache.Get(logicalName)
}

// Alarms exposes the live alarm tracker.
func (p *Pipeline) Alarms() *alarm.Tracker {
	return p.alarms
}

// RegisterIDFromTopic extracts the register id from a gateway topic of the
// form <gateway>/HP/<register> or <gateway>/HP/STATUS/<register>. The
// register id is always the last path segment.
func RegisterIDFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return "", false
	}
	last := parts[len(parts)-1]
	if last == "" || last == "STATUS" {
		return "", false
	}
	return last, true
}
