package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Simulator produces gateway-format register readings for a pump profile
// without hardware. It models compressor and hot-water cycles with plausible
// durations and derives the temperatures from the operating state.
//
// All randomness comes from the injected source, so a seeded simulator is
// reproducible.
type Simulator struct {
	cat *catalog.Catalog
	rnd *rand.Rand

	compressorOn bool
	hotWaterMode bool
	auxHeaterOn  bool

	// seconds of simulated time until the next state flip
	compressorTimer float64
	modeTimer       float64

	outdoorTemp    float64
	indoorTemp     float64
	brineIn        float64
	brineOut       float64
	forwardTemp    float64
	returnTemp     float64
	hotWaterTemp   float64
	compressorSecs float64
	auxHeaterSecs  float64
}

func New(cat *catalog.Catalog, rnd *rand.Rand) *Simulator {
	s := &Simulator{
		cat:          cat,
		rnd:          rnd,
		outdoorTemp:  -5.0,
		indoorTemp:   20.5,
		brineIn:      0.5,
		brineOut:     -3.0,
		forwardTemp:  35.0,
		returnTemp:   30.0,
		hotWaterTemp: 50.0,
	}
	s.compressorTimer = s.uniform(600, 1800)
	s.modeTimer = s.uniform(7200, 14400)
	return s
}

// SetOutdoorTemp overrides the ambient temperature the model runs against.
func (s *Simulator) SetOutdoorTemp(temp float64) {
	s.outdoorTemp = temp
}

// Update advances the simulation by dt.
func (s *Simulator) Update(dt time.Duration) {
	seconds := dt.Seconds()
	s.updateOperatingState(seconds)
	s.updateTemperatures()
	if s.compressorOn {
		s.compressorSecs += seconds
	}
	if s.auxHeaterOn {
		s.auxHeaterSecs += seconds
	}
}

func (s *Simulator) updateOperatingState(seconds float64) {
	s.compressorTimer -= seconds
	if s.compressorTimer <= 0 {
		s.compressorOn = !s.compressorOn
		if s.compressorOn {
			// on for 20-45 minutes
			s.compressorTimer = s.uniform(1200, 2700)
		} else {
			// off for 10-30 minutes
			s.compressorTimer = s.uniform(600, 1800)
		}
		logrus.WithField("on", s.compressorOn).Debug("compressor state changed")
	}

	s.modeTimer -= seconds
	if s.modeTimer <= 0 {
		s.hotWaterMode = !s.hotWaterMode
		if s.hotWaterMode {
			// hot water production for 30-60 minutes
			s.modeTimer = s.uniform(1800, 3600)
		} else {
			// heating for 2-4 hours
			s.modeTimer = s.uniform(7200, 14400)
		}
		logrus.WithField("hotWater", s.hotWaterMode).Debug("mode changed")
	}

	// auxiliary heater only helps out in severe cold
	s.auxHeaterOn = s.outdoorTemp < -10 && s.compressorOn && s.rnd.Float64() < 0.3
}

func (s *Simulator) updateTemperatures() {
	switch {
	case s.indoorTemp < 20.5:
		s.indoorTemp += s.uniform(0.01, 0.05)
	case s.indoorTemp > 21.5:
		s.indoorTemp -= s.uniform(0.01, 0.05)
	default:
		s.indoorTemp += s.uniform(-0.02, 0.02)
	}

	if !s.compressorOn {
		s.brineIn += (s.outdoorTemp - s.brineIn) * 0.05
		s.brineOut += (s.outdoorTemp - s.brineOut) * 0.05
		s.forwardTemp -= s.uniform(0.2, 0.5)
		s.returnTemp -= s.uniform(0.1, 0.3)
		if s.hotWaterTemp > 40 {
			s.hotWaterTemp -= s.uniform(0.1, 0.2)
		}
		return
	}

	s.brineIn = s.outdoorTemp + s.uniform(0.5, 2.0)
	s.brineOut = s.brineIn - s.uniform(3.0, 5.0)

	if s.hotWaterMode {
		s.forwardTemp = s.uniform(50, 60)
		s.returnTemp = s.forwardTemp - s.uniform(8, 12)
		if s.hotWaterTemp < 55 {
			s.hotWaterTemp += s.uniform(0.5, 1.5)
		}
	} else {
		// weather-compensated forward target
		target := 45 - s.outdoorTemp*1.2
		target = math.Max(30, math.Min(55, target))
		s.forwardTemp += (target - s.forwardTemp) * 0.1
		s.returnTemp = s.forwardTemp - s.uniform(5, 10)
		if s.hotWaterTemp > 45 {
			s.hotWaterTemp -= s.uniform(0.05, 0.15)
		}
	}

	if s.auxHeaterOn {
		s.forwardTemp += s.uniform(2, 5)
	}
}

func (s *Simulator) powerConsumption() float64 {
	if !s.compressorOn {
		return s.uniform(20, 50)
	}
	power := s.uniform(1200, 1600)
	if s.hotWaterMode {
		power += s.uniform(200, 400)
	}
	if s.auxHeaterOn {
		power += s.uniform(2000, 3000)
	}
	// compression gets harder as it gets colder
	return power * (1.0 + (-5-s.outdoorTemp)*0.02)
}

// Readings returns the current state as raw register payloads keyed by
// register id, in the wire format the gateway uses. Only registers the
// loaded profile knows get emitted.
func (s *Simulator) Readings() map[string]string {
	values := map[string]float64{
		"outdoor_temp":            s.outdoorTemp,
		"indoor_temp":             s.indoorTemp,
		"brine_in_evaporator":     s.brineIn,
		"brine_out_condenser":     s.brineOut,
		"radiator_forward":        s.forwardTemp,
		"radiator_return":         s.returnTemp,
		"heat_carrier_forward":    s.forwardTemp,
		"heat_carrier_return":     s.returnTemp,
		"hot_water_top":           s.hotWaterTemp,
		"warm_water_2":            s.hotWaterTemp - 3.0,
		"compressor_status":       boolValue(s.compressorOn),
		"brine_pump_status":       boolValue(s.compressorOn),
		"radiator_pump_status":    boolValue(s.compressorOn && !s.hotWaterMode),
		"switch_valve_status":     boolValue(s.hotWaterMode),
		"aux_heater_status":       boolValue(s.auxHeaterOn),
		"add_heat_step_1":         boolValue(s.auxHeaterOn),
		"power_consumption":       s.powerConsumption(),
		"additional_heat_percent": 50.0 * boolValue(s.auxHeaterOn),
		"compressor_runtime":      s.compressorSecs / 3600.0,
		"aux_heater_runtime":      s.auxHeaterSecs / 3600.0,
		"alarm_status":            0,
	}

	out := make(map[string]string)
	for name, v := range values {
		id, ok := s.cat.RegisterIDByLogicalName(name)
		if !ok {
			continue
		}
		desc, _ := s.cat.Lookup(id)
		out[id] = encode(desc.Class, v)
	}
	return out
}

// IsStatus reports whether a register publishes under the STATUS subtree.
func (s *Simulator) IsStatus(registerID string) bool {
	desc, ok := s.cat.Lookup(registerID)
	return ok && (desc.Class == catalog.ClassStatus || desc.Class == catalog.ClassAlarm)
}

// encode renders a value the way the gateway puts it on the wire. Negative
// temperatures are sent as unsigned 16-bit two's complement.
func encode(class catalog.ValueClass, v float64) string {
	switch class {
	case catalog.ClassTemperature:
		if v < 0 {
			return strconv.Itoa(int(math.Round(v)) + 65536)
		}
		return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
	case catalog.ClassStatus, catalog.ClassAlarm:
		return strconv.Itoa(int(v))
	case catalog.ClassPower:
		return strconv.FormatFloat(v, 'f', 0, 64)
	default:
		return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}

// Run publishes readings at interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, client *transport.Client, gatewayID string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.Update(now.Sub(last))
			last = now
			for id, payload := range s.Readings() {
				topic := transport.RegisterTopic(gatewayID, id, s.IsStatus(id))
				if err := client.Publish(topic, payload); err != nil {
					return fmt.Errorf("error publishing %s: %w", id, err)
				}
			}
		}
	}
}
