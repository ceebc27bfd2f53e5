package simulator

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/heatmon/heatmon/pkg/catalog"
	"github.com/heatmon/heatmon/pkg/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSimulator(t *testing.T) (*Simulator, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Load("thermia_diplomat", "")
	require.NoError(t, err)
	return New(cat, rand.New(rand.NewSource(1))), cat
}

func TestReadingsCoverProfile(t *testing.T) {
	s, cat := testSimulator(t)
	s.Update(time.Second)

	readings := s.Readings()
	for id := range readings {
		_, ok := cat.Lookup(id)
		assert.True(t, ok, "reading for unknown register %s", id)
	}
	// the core thermia registers must all be present
	for _, name := range []string{"outdoor_temp", "compressor_status", "switch_valve_status", "power_consumption", "alarm_status"} {
		id, ok := cat.RegisterIDByLogicalName(name)
		require.True(t, ok)
		assert.Contains(t, readings, id)
	}
}

func TestReadingsDecodeCleanly(t *testing.T) {
	s, cat := testSimulator(t)
	norm := normalize.New()
	for i := 0; i < 100; i++ {
		s.Update(time.Minute)
		for id, raw := range s.Readings() {
			desc, ok := cat.Lookup(id)
			require.True(t, ok)
			_, err := norm.Normalize(desc.Class, raw)
			assert.NoError(t, err, "register %s payload %q", id, raw)
		}
	}
}

func TestNegativeTemperatureEncoding(t *testing.T) {
	raw := encode(catalog.ClassTemperature, -5.0)
	assert.Equal(t, "65531", raw)

	norm := normalize.New()
	v, err := norm.Normalize(catalog.ClassTemperature, raw)
	require.NoError(t, err)
	assert.Equal(t, -5.0, v)
}

func TestStatusEncoding(t *testing.T) {
	assert.Equal(t, "1", encode(catalog.ClassStatus, 1))
	assert.Equal(t, "0", encode(catalog.ClassStatus, 0))
}

func TestDeterministicWithSeed(t *testing.T) {
	cat, err := catalog.Load("thermia_diplomat", "")
	require.NoError(t, err)

	a := New(cat, rand.New(rand.NewSource(42)))
	b := New(cat, rand.New(rand.NewSource(42)))
	for i := 0; i < 50; i++ {
		a.Update(time.Minute)
		b.Update(time.Minute)
	}
	assert.Equal(t, a.Readings(), b.Readings())
}

func TestCompressorCycles(t *testing.T) {
	s, cat := testSimulator(t)
	id, ok := cat.RegisterIDByLogicalName("compressor_status")
	require.True(t, ok)

	seen := map[string]bool{}
	// a simulated day sees both compressor states
	for i := 0; i < 24*60; i++ {
		s.Update(time.Minute)
		seen[s.Readings()[id]] = true
	}
	assert.True(t, seen["0"], "compressor never off")
	assert.True(t, seen["1"], "compressor never on")
}

func TestAuxHeaterNeedsSevereCold(t *testing.T) {
	s, _ := testSimulator(t)
	s.SetOutdoorTemp(5.0)
	for i := 0; i < 24*60; i++ {
		s.Update(time.Minute)
		assert.False(t, s.auxHeaterOn)
	}
}

func TestRuntimeAccumulates(t *testing.T) {
	s, cat := testSimulator(t)
	id, ok := cat.RegisterIDByLogicalName("compressor_runtime")
	require.True(t, ok)

	for i := 0; i < 24*60; i++ {
		s.Update(time.Minute)
	}
	hours, err := strconv.ParseFloat(s.Readings()[id], 64)
	require.NoError(t, err)
	assert.Greater(t, hours, 0.0)
	assert.Less(t, hours, 24.0)
}
