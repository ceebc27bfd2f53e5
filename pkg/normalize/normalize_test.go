package normalize

import (
	"errors"
	"testing"

	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTemperature(t *testing.T) {
	n := New()
	var tests = []struct {
		name     string
		raw      string
		expected float64
		reason   Reason
	}{
		{name: "normal value", raw: "54.0", expected: 54.0},
		{name: "rounds to one decimal", raw: "21.37", expected: 21.4},
		{name: "negative via twos complement", raw: "65531", expected: -5.0},
		{name: "wraparound lands out of range", raw: "33000", reason: ReasonOutOfRange},
		{name: "positive out of range", raw: "215", reason: ReasonOutOfRange},
		{name: "lower bound ok", raw: "-50", expected: -50.0},
		{name: "below lower bound", raw: "-50.1", reason: ReasonOutOfRange},
		{name: "not numeric", raw: "offline", reason: ReasonNotNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := n.Normalize(catalog.ClassTemperature, tt.raw)
			if tt.reason != "" {
				var rejected *RejectError
				require.ErrorAs(t, err, &rejected)
				assert.Equal(t, tt.reason, rejected.Reason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestTwosComplementDecoding(t *testing.T) {
	n := New()
	// any raw value above 32768 decodes as raw-65536 before the range check
	v, err := n.Normalize(catalog.ClassTemperature, "65534")
	require.NoError(t, err)
	assert.Equal(t, -2.0, v)

	_, err = n.Normalize(catalog.ClassTemperature, "33000") // 33000-65536 = -2536
	assert.Error(t, err)
}

func TestNegativeClampsToZero(t *testing.T) {
	n := New()
	for _, class := range []catalog.ValueClass{catalog.ClassPower, catalog.ClassEnergy, catalog.ClassRuntime} {
		v, err := n.Normalize(class, "-5")
		require.NoError(t, err, class)
		assert.Equal(t, 0.0, v, class)
	}
}

func TestPercentageBounds(t *testing.T) {
	n := New()
	var tests = []struct {
		raw      string
		expected float64
	}{
		{raw: "-10", expected: 0.0},
		{raw: "0", expected: 0.0},
		{raw: "55.55", expected: 55.6},
		{raw: "100", expected: 100.0},
		{raw: "250", expected: 100.0},
	}
	for _, tt := range tests {
		v, err := n.Normalize(catalog.ClassPercentage, tt.raw)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
		assert.Equal(t, tt.expected, v)
	}
}

func TestPassThroughClasses(t *testing.T) {
	n := New()
	for _, class := range []catalog.ValueClass{catalog.ClassStatus, catalog.ClassSetting, catalog.ClassAlarm, catalog.ClassUnknown} {
		v, err := n.Normalize(class, "-3.7")
		require.NoError(t, err, class)
		assert.Equal(t, -3.7, v, class)
	}
}

func TestEnergyRoundsToTwoDecimals(t *testing.T) {
	n := New()
	v, err := n.Normalize(catalog.ClassEnergy, "1234.567")
	require.NoError(t, err)
	assert.Equal(t, 1234.57, v)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := New()
	for i := 0; i < 3; i++ {
		v, err := n.Normalize(catalog.ClassTemperature, "65531")
		require.NoError(t, err)
		assert.Equal(t, -5.0, v)
	}
}

func TestNotNumericIsRejected(t *testing.T) {
	n := New()
	_, err := n.Normalize(catalog.ClassPower, "")
	var rejected *RejectError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, ReasonNotNumeric, rejected.Reason)
}
