package normalize

import (
	"fmt"
	"math"
	"strconv"

	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/sirupsen/logrus"
)

// Reason explains why a raw value was rejected.
type Reason string

const (
	ReasonNotNumeric Reason = "not-numeric"
	ReasonOutOfRange Reason = "out-of-range"
)

// RejectError is returned when a raw value cannot produce a metric point.
type RejectError struct {
	Class  catalog.ValueClass
	Raw    string
	Reason Reason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("value %q rejected for class %s: %s", e.Raw, e.Class, e.Reason)
}

// Normalizer decodes raw register payloads into canonical values. The
// temperature constants are reverse-engineered from observed H66 gateway
// behaviour rather than a documented protocol, so they stay overridable.
type Normalizer struct {
	// values above TwosComplementLimit are negative temperatures encoded
	// as unsigned 16-bit wraparound
	TwosComplementLimit float64
	TwosComplementSpan  float64

	TempMin float64
	TempMax float64
}

func New() *Normalizer {
	return &Normalizer{
		TwosComplementLimit: 32768,
		TwosComplementSpan:  65536,
		TempMin:             -50,
		TempMax:             150,
	}
}

// Normalize converts raw to a canonical float for the given value class.
// Same input always yields the same output; the only side effect is a
// diagnostic log entry on rejection or clamp.
func (n *Normalizer) Normalize(class catalog.ValueClass, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &RejectError{Class: class, Raw: raw, Reason: ReasonNotNumeric}
	}

	switch class {
	case catalog.ClassTemperature:
		if v > n.TwosComplementLimit {
			v -= n.TwosComplementSpan
		}
		if v < n.TempMin || v > n.TempMax {
			logrus.WithFields(logrus.Fields{"raw": raw, "value": v}).Warn("temperature out of range")
			return 0, &RejectError{Class: class, Raw: raw, Reason: ReasonOutOfRange}
		}
		return round1(v), nil
	case catalog.ClassPower:
		if v < 0 {
			logrus.WithField("raw", raw).Warn("negative power value clamped to 0")
			return 0.0, nil
		}
		return round1(v), nil
	case catalog.ClassEnergy:
		if v < 0 {
			logrus.WithField("raw", raw).Warn("negative energy value clamped to 0")
			return 0.0, nil
		}
		return round2(v), nil
	case catalog.ClassRuntime:
		if v < 0 {
			logrus.WithField("raw", raw).Warn("negative runtime value clamped to 0")
			return 0.0, nil
		}
		return round1(v), nil
	case catalog.ClassPercentage:
		if v < 0 {
			return 0.0, nil
		}
		if v > 100 {
			return 100.0, nil
		}
		return round1(v), nil
	case catalog.ClassAlarm, catalog.ClassStatus, catalog.ClassSetting, catalog.ClassUnknown:
		return v, nil
	}
	return v, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
