package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// Influx stores points in InfluxDB 2.x. Writes use the blocking write API so
// a failed write surfaces to the caller as a retryable error.
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
}

func NewInflux(ctx context.Context, url, token, org, bucket string, timeout time.Duration) (*Influx, error) {
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(timeout.Seconds()))
	client := influxdb2.NewClientWithOptions(url, token, opts)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to influxdb %s: %w", url, err)
	}
	logrus.WithFields(logrus.Fields{"url": url, "status": health.Status}).Info("influxdb connection established")

	return &Influx{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
		bucket:   bucket,
	}, nil
}

func (s *Influx) WritePoint(ctx context.Context, p Point) error {
	tags := map[string]string{
		"register_id": p.RegisterID,
		"name":        p.LogicalName,
		"type":        string(p.Class),
	}
	if p.Unit != "" {
		tags["unit"] = p.Unit
	}
	pt := influxdb2.NewPoint(Measurement, tags, map[string]interface{}{"value": p.Value}, p.Time)
	if err := s.writeAPI.WritePoint(ctx, pt); err != nil {
		return fmt.Errorf("error writing point %s: %w", p.LogicalName, err)
	}
	return nil
}

func (s *Influx) QueryRange(ctx context.Context, logicalNames []string, start, end time.Time) (Series, error) {
	if len(logicalNames) == 0 {
		return Series{}, nil
	}

	conds := make([]string, 0, len(logicalNames))
	for _, name := range logicalNames {
		conds = append(conds, fmt.Sprintf(`r.name == %q`, name))
	}
	flux := fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == %q and r._field == "value")
  |> filter(fn: (r) => %s)`,
		s.bucket,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
		Measurement,
		strings.Join(conds, " or "))

	result, err := s.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("error querying range: %w", err)
	}
	defer result.Close()

	out := make(Series)
	for result.Next() {
		record := result.Record()
		name, ok := record.ValueByKey("name").(string)
		if !ok {
			continue
		}
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}
		out[name] = append(out[name], Sample{Time: record.Time(), Value: value})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("error reading query result: %w", err)
	}

	for name := range out {
		samples := out[name]
		sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
		out[name] = samples
	}
	return out, nil
}

func (s *Influx) Close() {
	s.client.Close()
}
