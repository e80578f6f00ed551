// Package compliance evaluates municipal movement regulations for a
// vehicle and route. All evaluation is pure: no I/O, no shared state.
package compliance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"routeguard/internal/model"
)

// Rules holds the configurable knobs of the evaluator. City deployments
// override them from a YAML file; zero values fall back to defaults.
type Rules struct {
	// Restricted hours applied to residential zones without their own interval.
	RestrictedFrom string `yaml:"restrictedFrom"`
	RestrictedTo   string `yaml:"restrictedTo"`

	// Canonical odd-even exemption set. Applied through the evaluator only,
	// so every call site agrees on the scope.
	OddEvenExemptFuels   []model.FuelType     `yaml:"oddEvenExemptFuels"`
	OddEvenExemptClasses []model.VehicleClass `yaml:"oddEvenExemptClasses"`

	// Penalty amounts reported on violations, by type.
	Penalties map[model.ViolationType]float64 `yaml:"penalties"`

	// Days before permit expiry at which a warning is raised.
	PermitWarnDays int `yaml:"permitWarnDays"`
}

// DefaultRules returns the engine defaults: 23:00-07:00 residential ban,
// electric+CNG fuels and electric/three-wheeler classes exempt from odd-even.
func DefaultRules() Rules {
	return Rules{
		RestrictedFrom:       "23:00",
		RestrictedTo:         "07:00",
		OddEvenExemptFuels:   []model.FuelType{model.FuelElectric, model.FuelCNG},
		OddEvenExemptClasses: []model.VehicleClass{model.ClassElectric, model.ClassThreeWheeler},
		Penalties: map[model.ViolationType]float64{
			model.ViolationTimeRestriction: 5000,
			model.ViolationOddEven:         2000,
			model.ViolationPollution:       10000,
			model.ViolationZone:            2000,
			model.ViolationWeightDimension: 5000,
		},
		PermitWarnDays: 7,
	}
}

// LoadRules reads a YAML rules file and overlays it on the defaults.
// An empty path returns the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read rules file: %w", err)
	}
	var over Rules
	if err := yaml.Unmarshal(data, &over); err != nil {
		return r, fmt.Errorf("parse rules file: %w", err)
	}
	if over.RestrictedFrom != "" {
		r.RestrictedFrom = over.RestrictedFrom
	}
	if over.RestrictedTo != "" {
		r.RestrictedTo = over.RestrictedTo
	}
	if len(over.OddEvenExemptFuels) > 0 {
		r.OddEvenExemptFuels = over.OddEvenExemptFuels
	}
	if len(over.OddEvenExemptClasses) > 0 {
		r.OddEvenExemptClasses = over.OddEvenExemptClasses
	}
	for k, v := range over.Penalties {
		r.Penalties[k] = v
	}
	if over.PermitWarnDays > 0 {
		r.PermitWarnDays = over.PermitWarnDays
	}
	return r, nil
}

func (r Rules) penalty(t model.ViolationType) float64 {
	return r.Penalties[t]
}

func (r Rules) oddEvenExempt(v model.Vehicle) bool {
	for _, f := range r.OddEvenExemptFuels {
		if v.FuelType == f {
			return true
		}
	}
	for _, c := range r.OddEvenExemptClasses {
		if v.Class == c {
			return true
		}
	}
	return false
}
