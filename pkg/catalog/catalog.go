package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

//go:embed profiles/*.yaml
var profiles embed.FS

// ValueClass decides how a raw register value is decoded and validated.
type ValueClass string

const (
	ClassTemperature ValueClass = "temperature"
	ClassStatus      ValueClass = "status"
	ClassPower       ValueClass = "power"
	ClassEnergy      ValueClass = "energy"
	ClassPercentage  ValueClass = "percentage"
	ClassSetting     ValueClass = "setting"
	ClassAlarm       ValueClass = "alarm"
	ClassRuntime     ValueClass = "runtime"
	ClassUnknown     ValueClass = "unknown"
)

func (c ValueClass) Valid() bool {
	switch c {
	case ClassTemperature, ClassStatus, ClassPower, ClassEnergy,
		ClassPercentage, ClassSetting, ClassAlarm, ClassRuntime, ClassUnknown:
		return true
	}
	return false
}

// Descriptor describes one register of a pump profile.
type Descriptor struct {
	RegisterID  string
	LogicalName string
	Unit        string
	Class       ValueClass
	Description string
}

// Capabilities is derived from which logical names a profile exposes.
type Capabilities struct {
	HasPowerMeasurement    bool `json:"hasPowerMeasurement"`
	HasEnergyMeasurement   bool `json:"hasEnergyMeasurement"`
	HasHeatCarrierSensors  bool `json:"hasHeatCarrierSensors"`
	HasSeparateHeaterSteps bool `json:"hasSeparateHeaterSteps"`
	HasDetailedRuntime     bool `json:"hasDetailedRuntime"`
	HasExternalTankSensor  bool `json:"hasExternalTankSensor"`
}

// Catalog holds the register table for one configured pump. It is built once
// at startup and read-only afterwards so concurrent lookups need no locking.
type Catalog struct {
	pumpType   string
	brand      string
	model      string
	registers  map[string]Descriptor
	logical    map[string]string
	caps       Capabilities
	alarmCodes map[int]string
}

type profileFile struct {
	Metadata struct {
		Brand      string         `yaml:"brand"`
		Model      string         `yaml:"model"`
		AlarmCodes map[int]string `yaml:"alarm_codes"`
	} `yaml:"metadata"`
	Registers map[string]struct {
		LogicalName string `yaml:"logical_name"`
		Type        string `yaml:"type"`
		Unit        string `yaml:"unit"`
		Description string `yaml:"description"`
	} `yaml:"registers"`
}

// Load reads the profile for pumpType. Profiles ship embedded in the binary;
// a non-empty profileDir overrides them with files on disk.
func Load(pumpType, profileDir string) (*Catalog, error) {
	name := strings.ToLower(strings.TrimSpace(pumpType)) + ".yaml"

	var (
		data []byte
		err  error
	)
	if profileDir != "" {
		data, err = os.ReadFile(filepath.Join(profileDir, name))
	} else {
		data, err = profiles.ReadFile("profiles/" + name)
	}
	if err != nil {
		return nil, fmt.Errorf("pump profile %s not found: %w", pumpType, err)
	}

	return Parse(pumpType, data)
}

// Parse builds a catalog from raw profile YAML. A register missing its
// logical_name or type, an unknown type or a duplicated logical name make the
// whole profile invalid.
func Parse(pumpType string, data []byte) (*Catalog, error) {
	pf := &profileFile{}
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("error parsing pump profile %s: %w", pumpType, err)
	}
	if len(pf.Registers) == 0 {
		return nil, fmt.Errorf("pump profile %s has no registers", pumpType)
	}

	c := &Catalog{
		pumpType:   pumpType,
		brand:      pf.Metadata.Brand,
		model:      pf.Metadata.Model,
		registers:  make(map[string]Descriptor, len(pf.Registers)),
		logical:    make(map[string]string, len(pf.Registers)),
		alarmCodes: pf.Metadata.AlarmCodes,
	}

	for id, reg := range pf.Registers {
		key := strings.ToUpper(strings.TrimSpace(id))
		if reg.LogicalName == "" {
			return nil, fmt.Errorf("register %s in profile %s is missing logical_name", key, pumpType)
		}
		if reg.Type == "" {
			return nil, fmt.Errorf("register %s in profile %s is missing type", key, pumpType)
		}
		class := ValueClass(reg.Type)
		if !class.Valid() {
			return nil, fmt.Errorf("register %s in profile %s has unknown type %q", key, pumpType, reg.Type)
		}
		if _, ok := c.registers[key]; ok {
			return nil, fmt.Errorf("duplicate register id %s in profile %s", key, pumpType)
		}
		if _, ok := c.logical[reg.LogicalName]; ok {
			return nil, fmt.Errorf("duplicate logical name %s in profile %s", reg.LogicalName, pumpType)
		}
		c.registers[key] = Descriptor{
			RegisterID:  key,
			LogicalName: reg.LogicalName,
			Unit:        reg.Unit,
			Class:       class,
			Description: reg.Description,
		}
		c.logical[reg.LogicalName] = key
	}

	c.caps = detectCapabilities(c.logical)

	logrus.WithFields(logrus.Fields{
		"profile":   pumpType,
		"brand":     c.brand,
		"model":     c.model,
		"registers": len(c.registers),
	}).Info("loaded pump profile")

	return c, nil
}

func detectCapabilities(logical map[string]string) Capabilities {
	has := func(name string) bool {
		_, ok := logical[name]
		return ok
	}
	return Capabilities{
		HasPowerMeasurement:    has("power_consumption"),
		HasEnergyMeasurement:   has("energy_accumulated"),
		HasHeatCarrierSensors:  has("heat_carrier_return"),
		HasSeparateHeaterSteps: has("add_heat_step_1"),
		HasDetailedRuntime:     has("compressor_runtime_heating"),
		HasExternalTankSensor:  has("warm_water_2"),
	}
}

// Lookup is case-insensitive on register id.
func (c *Catalog) Lookup(registerID string) (Descriptor, bool) {
	d, ok := c.registers[strings.ToUpper(strings.TrimSpace(registerID))]
	return d, ok
}

func (c *Catalog) RegisterIDByLogicalName(logicalName string) (string, bool) {
	id, ok := c.logical[logicalName]
	return id, ok
}

// All returns every descriptor, ordered by register id.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.registers))
	for _, d := range c.registers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisterID < out[j].RegisterID })
	return out
}

// LogicalNames returns every logical name, sorted.
func (c *Catalog) LogicalNames() []string {
	out := make([]string, 0, len(c.logical))
	for name := range c.logical {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) Capabilities() Capabilities {
	return c.caps
}

func (c *Catalog) PumpType() string {
	return c.pumpType
}

func (c *Catalog) Brand() string {
	return c.brand
}

func (c *Catalog) Model() string {
	return c.model
}

// AlarmDescription returns the human text for an alarm code if the profile
// documents it.
func (c *Catalog) AlarmDescription(code int) (string, bool) {
	s, ok := c.alarmCodes[code]
	return s, ok
}
