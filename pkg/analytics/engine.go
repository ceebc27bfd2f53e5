package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Querier is the read side of the time-series store.
type Querier interface {
	QueryRange(ctx context.Context, logicalNames []string, start, end time.Time) (storage.Series, error)
}

// Config holds the tunables of the engine. The COP model constants are
// reverse-engineered from observed pump behavior, not from a documented
// protocol, so they stay overridable.
type Config struct {
	COPFallback float64
	COPMin      float64
	COPMax      float64
	COPBase     float64
	COPSlope    float64
	COPRefTemp  float64

	LatestLookback   time.Duration
	MinCycleDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		COPFallback:      3.0,
		COPMin:           1.5,
		COPMax:           6.0,
		COPBase:          3.45,
		COPSlope:         0.098,
		COPRefTemp:       60.0,
		LatestLookback:   24 * time.Hour,
		MinCycleDuration: 60 * time.Second,
	}
}

// Engine computes derived statistics over stored series. All integrals use
// left-rectangle summation: each sample's value holds until the next sample,
// and the last sample holds until the end of the range.
type Engine struct {
	store Querier
	cat   *catalog.Catalog
	cfg   Config
}

func New(store Querier, cat *catalog.Catalog, cfg Config) *Engine {
	return &Engine{store: store, cat: cat, cfg: cfg}
}

// COPResult is a bucketed series of coefficient-of-performance estimates.
// When NoData is set the series is empty and Mean holds the configured
// fallback constant; the values are model estimates either way, never
// measured.
type COPResult struct {
	Samples []storage.Sample `json:"samples"`
	Mean    float64          `json:"mean"`
	NoData  bool             `json:"noData"`
}

// RuntimeStats integrates the compressor and auxiliary heater duty over a
// range. Elapsed is always end minus start regardless of sample density.
type RuntimeStats struct {
	CompressorSeconds float64 `json:"compressorSeconds"`
	AuxHeaterSeconds  float64 `json:"auxHeaterSeconds"`
	ElapsedSeconds    float64 `json:"elapsedSeconds"`
	CompressorPercent float64 `json:"compressorPercent"`
	AuxHeaterPercent  float64 `json:"auxHeaterPercent"`
	InactivePercent   float64 `json:"inactivePercent"`
}

// CostSummary is the integrated energy consumption priced per kWh.
type CostSummary struct {
	EnergyKWh    float64 `json:"energyKwh"`
	TotalCost    float64 `json:"totalCost"`
	PricePerKWh  float64 `json:"pricePerKwh"`
	AveragePower float64 `json:"averagePowerW"`
	PeakPower    float64 `json:"peakPowerW"`
}

// Cycle is one contiguous hot-water production interval.
type Cycle struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"durationSeconds"`
	EnergyKWh       float64   `json:"energyKwh"`
}

// HotWaterStats summarizes hot-water cycles over a range.
type HotWaterStats struct {
	Cycles             []Cycle `json:"cycles"`
	Count              int     `json:"count"`
	CyclesPerDay       float64 `json:"cyclesPerDay"`
	AvgDurationMinutes float64 `json:"avgDurationMinutes"`
	AvgEnergyKWh       float64 `json:"avgEnergyKwh"`
}

// Value is a latest reading for one logical name.
type Value struct {
	Value float64   `json:"value"`
	Unit  string    `json:"unit,omitempty"`
	Time  time.Time `json:"time"`
}

// MinMax holds the extrema of one series over a range.
type MinMax struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// AlarmStatus reports the most recent alarm reading. Since is the first
// transition to the current nonzero code, not the latest sample time.
type AlarmStatus struct {
	Active      bool      `json:"active"`
	Code        int       `json:"code"`
	Description string    `json:"description,omitempty"`
	Since       time.Time `json:"since,omitempty"`
}

// CalculateCOP estimates the coefficient of performance from the heat
// carrier forward temperature while the compressor runs. The estimate is a
// linear fit, base + slope*(refTemp - forward), clamped into [COPMin,
// COPMax]. Without forward-temperature data in the range the result carries
// the fallback constant and NoData set.
func (e *Engine) CalculateCOP(ctx context.Context, start, end time.Time) (*COPResult, error) {
	tempName := e.forwardTempName()
	series, err := e.store.QueryRange(ctx, []string{tempName, "compressor_status"}, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying COP inputs: %w", err)
	}

	temps := series[tempName]
	status := series["compressor_status"]

	result := &COPResult{Samples: []storage.Sample{}}
	var sum float64
	for _, s := range temps {
		if !stepValueAt(status, s.Time) {
			continue
		}
		cop := e.cfg.COPBase + e.cfg.COPSlope*(e.cfg.COPRefTemp-s.Value)
		cop = math.Min(math.Max(cop, e.cfg.COPMin), e.cfg.COPMax)
		result.Samples = append(result.Samples, storage.Sample{Time: s.Time, Value: round2(cop)})
		sum += cop
	}

	if len(result.Samples) == 0 {
		result.NoData = true
		result.Mean = e.cfg.COPFallback
		return result, nil
	}
	result.Mean = round2(sum / float64(len(result.Samples)))
	return result, nil
}

// CalculateRuntimeStats integrates compressor and auxiliary heater on-time
// over the range. Percentages are clamped into [0, 100] and the three shares
// always sum to 100.
func (e *Engine) CalculateRuntimeStats(ctx context.Context, start, end time.Time) (*RuntimeStats, error) {
	auxName := e.auxHeaterName()
	series, err := e.store.QueryRange(ctx, []string{"compressor_status", auxName}, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying runtime inputs: %w", err)
	}

	elapsed := end.Sub(start).Seconds()
	stats := &RuntimeStats{ElapsedSeconds: elapsed}
	if elapsed <= 0 {
		stats.InactivePercent = 100.0
		return stats, nil
	}

	stats.CompressorSeconds = integrateOnTime(series["compressor_status"], end)
	stats.AuxHeaterSeconds = integrateOnTime(series[auxName], end)
	stats.CompressorPercent = clampPercent(stats.CompressorSeconds / elapsed * 100.0)
	stats.AuxHeaterPercent = clampPercent(stats.AuxHeaterSeconds / elapsed * 100.0)
	stats.InactivePercent = round1(100.0 - stats.CompressorPercent - stats.AuxHeaterPercent)
	if stats.InactivePercent < 0 {
		stats.InactivePercent = 0.0
	}
	return stats, nil
}

// CalculateEnergyCosts integrates the power consumption series and prices
// the energy. Negative samples contribute zero, never negative cost.
func (e *Engine) CalculateEnergyCosts(ctx context.Context, start, end time.Time, pricePerKWh float64) (*CostSummary, error) {
	series, err := e.store.QueryRange(ctx, []string{"power_consumption"}, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying power consumption: %w", err)
	}

	power := series["power_consumption"]
	summary := &CostSummary{PricePerKWh: pricePerKWh}

	wattHours := integrateWattHours(power, end)
	summary.EnergyKWh = round2(wattHours / 1000.0)
	summary.TotalCost = round2(summary.EnergyKWh * pricePerKWh)

	elapsedHours := end.Sub(start).Hours()
	if elapsedHours > 0 {
		summary.AveragePower = round1(wattHours / elapsedHours)
	}
	for _, s := range power {
		if s.Value > summary.PeakPower {
			summary.PeakPower = s.Value
		}
	}
	return summary, nil
}

// AnalyzeHotWaterCycles segments the hot-water mode indicator into
// contiguous on-intervals. A cycle still running at range end is closed at
// the range end. Cycles shorter than the configured minimum duration are
// discarded as sensor glitches.
func (e *Engine) AnalyzeHotWaterCycles(ctx context.Context, start, end time.Time) (*HotWaterStats, error) {
	series, err := e.store.QueryRange(ctx, []string{"switch_valve_status", "power_consumption"}, start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying hot water inputs: %w", err)
	}

	indicator := series["switch_valve_status"]
	power := series["power_consumption"]

	stats := &HotWaterStats{Cycles: []Cycle{}}
	var cycleStart time.Time
	inCycle := false
	for _, s := range indicator {
		on := s.Value > 0
		switch {
		case on && !inCycle:
			cycleStart = s.Time
			inCycle = true
		case !on && inCycle:
			stats.addCycle(cycleStart, s.Time, power, e.cfg.MinCycleDuration)
			inCycle = false
		}
	}
	if inCycle {
		stats.addCycle(cycleStart, end, power, e.cfg.MinCycleDuration)
	}

	stats.Count = len(stats.Cycles)
	rangeDays := end.Sub(start).Hours() / 24.0
	if rangeDays > 0 {
		stats.CyclesPerDay = round1(float64(stats.Count) / rangeDays)
	}
	if stats.Count > 0 {
		var durSum, energySum float64
		for _, c := range stats.Cycles {
			durSum += c.DurationSeconds
			energySum += c.EnergyKWh
		}
		stats.AvgDurationMinutes = round1(durSum / float64(stats.Count) / 60.0)
		stats.AvgEnergyKWh = round2(energySum / float64(stats.Count))
	}
	return stats, nil
}

func (h *HotWaterStats) addCycle(start, end time.Time, power []storage.Sample, minDuration time.Duration) {
	duration := end.Sub(start)
	if duration < minDuration {
		logrus.WithField("duration", duration).Debug("discarding short hot water cycle")
		return
	}
	h.Cycles = append(h.Cycles, Cycle{
		Start:           start,
		End:             end,
		DurationSeconds: duration.Seconds(),
		EnergyKWh:       round2(integrateWattHoursBetween(power, start, end) / 1000.0),
	})
}

// GetLatestValues returns the most recent point per logical name within the
// configured lookback window. Names with no data in the window are absent.
func (e *Engine) GetLatestValues(ctx context.Context, now time.Time) (map[string]Value, error) {
	names := e.cat.LogicalNames()
	series, err := e.store.QueryRange(ctx, names, now.Add(-e.cfg.LatestLookback), now)
	if err != nil {
		return nil, fmt.Errorf("error querying latest values: %w", err)
	}

	out := make(map[string]Value, len(series))
	for name, samples := range series {
		if len(samples) == 0 {
			continue
		}
		last := samples[len(samples)-1]
		var unit string
		if id, ok := e.cat.RegisterIDByLogicalName(name); ok {
			if desc, ok := e.cat.Lookup(id); ok {
				unit = desc.Unit
			}
		}
		out[name] = Value{Value: last.Value, Unit: unit, Time: last.Time}
	}
	return out, nil
}

// GetMinMaxValues returns the extrema per logical name over the range.
func (e *Engine) GetMinMaxValues(ctx context.Context, start, end time.Time) (map[string]MinMax, error) {
	series, err := e.store.QueryRange(ctx, e.cat.LogicalNames(), start, end)
	if err != nil {
		return nil, fmt.Errorf("error querying min/max values: %w", err)
	}

	out := make(map[string]MinMax, len(series))
	for name, samples := range series {
		if len(samples) == 0 {
			continue
		}
		mm := MinMax{Min: samples[0].Value, Max: samples[0].Value}
		for _, s := range samples[1:] {
			mm.Min = math.Min(mm.Min, s.Value)
			mm.Max = math.Max(mm.Max, s.Value)
		}
		out[name] = mm
	}
	return out, nil
}

// GetAlarmStatus reports the latest alarm reading. For an active alarm the
// activation time is the first sample of the current uninterrupted run of
// that code, found by walking the series backwards.
func (e *Engine) GetAlarmStatus(ctx context.Context, now time.Time) (*AlarmStatus, error) {
	series, err := e.store.QueryRange(ctx, []string{"alarm_status"}, now.Add(-e.cfg.LatestLookback), now)
	if err != nil {
		return nil, fmt.Errorf("error querying alarm status: %w", err)
	}

	samples := series["alarm_status"]
	if len(samples) == 0 {
		return &AlarmStatus{}, nil
	}

	last := samples[len(samples)-1]
	code := int(last.Value)
	if code == 0 {
		return &AlarmStatus{}, nil
	}

	since := last.Time
	for i := len(samples) - 2; i >= 0; i-- {
		if int(samples[i].Value) != code {
			break
		}
		since = samples[i].Time
	}

	status := &AlarmStatus{Active: true, Code: code, Since: since}
	if desc, ok := e.cat.AlarmDescription(code); ok {
		status.Description = desc
	}
	return status, nil
}

// forwardTempName picks the temperature the COP model runs on. Pumps with a
// dedicated heat carrier circuit report heat_carrier_forward; others expose
// only the radiator forward line.
func (e *Engine) forwardTempName() string {
	if _, ok := e.cat.RegisterIDByLogicalName("heat_carrier_forward"); ok {
		return "heat_carrier_forward"
	}
	return "radiator_forward"
}

// auxHeaterName picks the auxiliary heater on-indicator. Anything above zero
// counts as on, which also works for the percentage-style register.
func (e *Engine) auxHeaterName() string {
	for _, name := range []string{"aux_heater_status", "add_heat_step_1", "additional_heat_percent"} {
		if _, ok := e.cat.RegisterIDByLogicalName(name); ok {
			return name
		}
	}
	return "additional_heat_percent"
}

// stepValueAt evaluates a status series at t: the value of the latest sample
// at or before t, off when no sample precedes t.
func stepValueAt(samples []storage.Sample, t time.Time) bool {
	on := false
	for _, s := range samples {
		if s.Time.After(t) {
			break
		}
		on = s.Value > 0
	}
	return on
}

// integrateOnTime sums the seconds a status series reads on. Each sample
// holds until the next one, the last until end.
func integrateOnTime(samples []storage.Sample, end time.Time) float64 {
	var seconds float64
	for i, s := range samples {
		if s.Value <= 0 {
			continue
		}
		next := end
		if i+1 < len(samples) {
			next = samples[i+1].Time
		}
		if d := next.Sub(s.Time).Seconds(); d > 0 {
			seconds += d
		}
	}
	return seconds
}

// integrateWattHours integrates a power series in watts into watt hours.
// Negative samples contribute nothing.
func integrateWattHours(samples []storage.Sample, end time.Time) float64 {
	var wh float64
	for i, s := range samples {
		if s.Value <= 0 {
			continue
		}
		next := end
		if i+1 < len(samples) {
			next = samples[i+1].Time
		}
		if d := next.Sub(s.Time).Hours(); d > 0 {
			wh += s.Value * d
		}
	}
	return wh
}

// integrateWattHoursBetween restricts the integration to [start, end),
// clipping the holding interval of boundary samples.
func integrateWattHoursBetween(samples []storage.Sample, start, end time.Time) float64 {
	var wh float64
	for i, s := range samples {
		if s.Value <= 0 {
			continue
		}
		from := s.Time
		if from.Before(start) {
			from = start
		}
		to := end
		if i+1 < len(samples) && samples[i+1].Time.Before(end) {
			to = samples[i+1].Time
		}
		if d := to.Sub(from).Hours(); d > 0 {
			wh += s.Value * d
		}
	}
	return wh
}

func clampPercent(v float64) float64 {
	return round1(math.Min(math.Max(v, 0.0), 100.0))
}

func round1(v float64) float64 {
	return math.Round(v*10.0) / 10.0
}

func round2(v float64) float64 {
	return math.Round(v*100.0) / 100.0
}
