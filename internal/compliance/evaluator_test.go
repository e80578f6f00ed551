package compliance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"routeguard/internal/model"
)

func dieselTruck(plate string) model.Vehicle {
	return model.Vehicle{
		ID:             "v_" + plate,
		PlateNumber:    plate,
		Class:          model.ClassTruck,
		Capacity:       model.Capacity{WeightKg: 5000, VolumeM3: 20},
		Status:         model.StatusAvailable,
		FuelType:       model.FuelDiesel,
		PollutionClass: model.PollutionBS4,
		Access:         model.AccessPrivileges{Residential: true, Commercial: true, Industrial: true},
	}
}

func hasViolation(v model.ComplianceVerdict, t model.ViolationType) bool {
	for _, vi := range v.Violations {
		if vi.Type == t {
			return true
		}
	}
	return false
}

func TestOddEvenParity(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	truck := dieselTruck("DL01AB1357") // last digit 7, odd

	oddDay := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if v := eval.Evaluate(truck, nil, oddDay); !v.IsCompliant {
		t.Fatalf("odd plate on odd day should be compliant, got %+v", v.Violations)
	}

	evenDay := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)
	v := eval.Evaluate(truck, nil, evenDay)
	if v.IsCompliant || !hasViolation(v, model.ViolationOddEven) {
		t.Fatalf("odd plate on even day should violate, got %+v", v)
	}
	if v.Violations[0].Penalty != 2000 {
		t.Fatalf("expected default odd-even penalty 2000, got %v", v.Violations[0].Penalty)
	}
	if len(v.SuggestedActions) == 0 {
		t.Fatal("expected a suggested action for the odd-even violation")
	}
}

func TestOddEvenExemptions(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	evenDay := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

	ev := dieselTruck("DL01EV1357")
	ev.FuelType = model.FuelElectric
	if v := eval.Evaluate(ev, nil, evenDay); !v.IsCompliant {
		t.Fatalf("electric fuel should be exempt, got %+v", v.Violations)
	}

	cng := dieselTruck("DL01CN1357")
	cng.FuelType = model.FuelCNG
	if v := eval.Evaluate(cng, nil, evenDay); !v.IsCompliant {
		t.Fatalf("CNG fuel should be exempt, got %+v", v.Violations)
	}

	tw := dieselTruck("DL01TW1357")
	tw.Class = model.ClassThreeWheeler
	if v := eval.Evaluate(tw, nil, evenDay); !v.IsCompliant {
		t.Fatalf("three-wheeler should be exempt, got %+v", v.Violations)
	}

	noDigits := dieselTruck("NODIGITS")
	v := eval.Evaluate(noDigits, nil, evenDay)
	if !v.IsCompliant {
		t.Fatalf("plate without digits must not violate, got %+v", v.Violations)
	}
	if len(v.Warnings) == 0 {
		t.Fatal("expected a warning for a digitless plate")
	}
}

func TestTimeRestrictionResidentialNight(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	truck := dieselTruck("DL01AB1357")
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	res := &model.Zone{ID: "z_res", Type: model.ZoneResidential}
	night := model.TimeWindow{Start: day.Add(2 * time.Hour), End: day.Add(5 * time.Hour)}
	stops := []model.Stop{{Location: model.GeoPoint{Lat: 28.6, Lng: 77.2}, Type: model.StopDelivery, Zone: res, Window: &night}}

	v := eval.Evaluate(truck, stops, day.Add(10*time.Hour))
	if !hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("02:00-05:00 residential window should hit the 23:00-07:00 ban, got %+v", v)
	}

	// Restricted-hours access waives the ban entirely.
	exempt := truck
	exempt.Access.RestrictedHours = true
	if v := eval.Evaluate(exempt, stops, day.Add(10*time.Hour)); hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("restricted-hours access should waive the ban, got %+v", v.Violations)
	}

	// Daytime window is fine.
	noon := model.TimeWindow{Start: day.Add(9 * time.Hour), End: day.Add(12 * time.Hour)}
	stops[0].Window = &noon
	if v := eval.Evaluate(truck, stops, day.Add(10*time.Hour)); hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("daytime window should pass, got %+v", v.Violations)
	}

	// Commercial zones have no residential ban.
	stops[0].Zone = &model.Zone{ID: "z_com", Type: model.ZoneCommercial}
	stops[0].Window = &night
	if v := eval.Evaluate(truck, stops, day.Add(10*time.Hour)); hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("commercial zone should not carry the residential ban, got %+v", v.Violations)
	}
}

func TestTimeRestrictionWindowContainingBan(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	truck := dieselTruck("DL01AB1357")
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	res := &model.Zone{ID: "z_res", Type: model.ZoneResidential}
	// 22:00 to 08:00 the next day: both endpoints sit outside the
	// 23:00-07:00 ban, but the vehicle would be in the zone for the
	// whole banned night.
	overnight := model.TimeWindow{Start: day.Add(22 * time.Hour), End: day.Add(32 * time.Hour)}
	stops := []model.Stop{{Type: model.StopDelivery, Zone: res, Window: &overnight}}
	if v := eval.Evaluate(truck, stops, day.Add(22*time.Hour)); !hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("window containing the full ban must violate, got %+v", v)
	}

	// Grazing the ban's edge from outside stays legal.
	evening := model.TimeWindow{Start: day.Add(20 * time.Hour), End: day.Add(23 * time.Hour)}
	stops[0].Window = &evening
	if v := eval.Evaluate(truck, stops, day.Add(20*time.Hour)); hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("window ending at the ban start should pass, got %+v", v.Violations)
	}

	// Overlapping the tail of the wrapped ban.
	dawn := model.TimeWindow{Start: day.Add(30 * time.Hour), End: day.Add(33 * time.Hour)} // 06:00-09:00
	stops[0].Window = &dawn
	if v := eval.Evaluate(truck, stops, day.Add(30*time.Hour)); !hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("06:00-09:00 overlaps the ban tail, got %+v", v)
	}
}

func TestMoreRestrictiveZoneAddsViolations(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	at := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)
	truck := dieselTruck("DL01AB1357")

	open := &model.Zone{ID: "z", Type: model.ZoneCommercial}
	strict := &model.Zone{
		ID:               "z",
		Type:             model.ZoneCommercial,
		AllowedPollution: []model.PollutionClass{model.PollutionElectric},
		MaxWeightKg:      1000,
	}

	before := eval.Evaluate(truck, []model.Stop{{Type: model.StopDelivery, Zone: open}}, at)
	after := eval.Evaluate(truck, []model.Stop{{Type: model.StopDelivery, Zone: strict}}, at)

	// Tightening the zone may only add violations, never remove any.
	had := map[model.ViolationType]bool{}
	for _, vi := range after.Violations {
		had[vi.Type] = true
	}
	for _, vi := range before.Violations {
		if !had[vi.Type] {
			t.Fatalf("restricting the zone dropped violation %s", vi.Type)
		}
	}
	if len(after.Violations) <= len(before.Violations) {
		t.Fatalf("stricter zone should add violations: before %d after %d", len(before.Violations), len(after.Violations))
	}
}

func TestZoneOwnRestrictedInterval(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	truck := dieselTruck("DL01AB1357")
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	zone := &model.Zone{ID: "z_res", Type: model.ZoneResidential, RestrictedFrom: "13:00", RestrictedTo: "15:00"}
	w := model.TimeWindow{Start: day.Add(14 * time.Hour), End: day.Add(16 * time.Hour)}
	stops := []model.Stop{{Type: model.StopDelivery, Zone: zone, Window: &w}}
	if v := eval.Evaluate(truck, stops, day.Add(14*time.Hour)); !hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("zone interval should override the default, got %+v", v)
	}

	// The default 23:00-07:00 ban no longer applies when the zone overrides it.
	night := model.TimeWindow{Start: day.Add(2 * time.Hour), End: day.Add(5 * time.Hour)}
	stops[0].Window = &night
	if v := eval.Evaluate(truck, stops, day.Add(10*time.Hour)); hasViolation(v, model.ViolationTimeRestriction) {
		t.Fatalf("overridden interval should replace the default ban, got %+v", v.Violations)
	}
}

func TestPollutionAndZoneAccess(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	lez := &model.Zone{ID: "z_lez", Type: model.ZoneCommercial, AllowedPollution: []model.PollutionClass{model.PollutionBS6, model.PollutionElectric}}
	stops := []model.Stop{{Type: model.StopDelivery, Zone: lez}}

	bs4 := dieselTruck("DL01AB1357")
	if v := eval.Evaluate(bs4, stops, at); !hasViolation(v, model.ViolationPollution) {
		t.Fatalf("BS4 in a BS6-only zone should violate, got %+v", v)
	}

	bs6 := dieselTruck("DL01AB1357")
	bs6.PollutionClass = model.PollutionBS6
	if v := eval.Evaluate(bs6, stops, at); hasViolation(v, model.ViolationPollution) {
		t.Fatalf("BS6 should be admitted, got %+v", v.Violations)
	}

	// Missing access privilege for the zone type.
	noAccess := dieselTruck("DL01AB1357")
	noAccess.Access.Commercial = false
	if v := eval.Evaluate(noAccess, stops, at); !hasViolation(v, model.ViolationZone) {
		t.Fatalf("missing commercial access should violate, got %+v", v)
	}

	// Narrow lanes need their own privilege even with zone-type access.
	narrow := &model.Zone{ID: "z_nl", Type: model.ZoneResidential, NarrowLanes: true}
	stops = []model.Stop{{Type: model.StopDelivery, Zone: narrow}}
	if v := eval.Evaluate(dieselTruck("DL01AB1357"), stops, at); !hasViolation(v, model.ViolationZone) {
		t.Fatalf("narrow-lane zone without privilege should violate, got %+v", v)
	}
}

func TestWeightAndDimensionLimits(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	zone := &model.Zone{ID: "z_lim", Type: model.ZoneResidential, MaxWeightKg: 3000}
	stops := []model.Stop{{Type: model.StopDelivery, Zone: zone}}

	heavy := dieselTruck("DL01AB1357") // 5000 kg
	if v := eval.Evaluate(heavy, stops, at); !hasViolation(v, model.ViolationWeightDimension) {
		t.Fatalf("5000kg in a 3000kg zone should violate, got %+v", v)
	}

	light := heavy
	light.Capacity.WeightKg = 1200
	if v := eval.Evaluate(light, stops, at); hasViolation(v, model.ViolationWeightDimension) {
		t.Fatalf("1200kg should pass, got %+v", v.Violations)
	}

	tall := light
	tall.Capacity.Dimensions = model.Dimensions{HeightM: 4.2}
	zone.MaxDimensions = model.Dimensions{HeightM: 3.5}
	if v := eval.Evaluate(tall, stops, at); !hasViolation(v, model.ViolationWeightDimension) {
		t.Fatalf("over-height vehicle should violate, got %+v", v)
	}
}

func TestViolationsAreAdditive(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	evenDay := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

	zone := &model.Zone{ID: "z_lez", Type: model.ZoneCommercial, AllowedPollution: []model.PollutionClass{model.PollutionBS6}, MaxWeightKg: 3000}
	stops := []model.Stop{{Type: model.StopDelivery, Zone: zone}}

	truck := dieselTruck("DL01AB1357")
	v := eval.Evaluate(truck, stops, evenDay)
	for _, want := range []model.ViolationType{model.ViolationOddEven, model.ViolationPollution, model.ViolationWeightDimension} {
		if !hasViolation(v, want) {
			t.Fatalf("expected %s among violations, got %+v", want, v.Violations)
		}
	}
	if len(v.SuggestedActions) != 3 {
		t.Fatalf("expected one suggested action per violation type, got %v", v.SuggestedActions)
	}
}

func TestPermitExpiryWarnings(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	soon := dieselTruck("DL01AB1357")
	soon.PermitValidTo = at.AddDate(0, 0, 3)
	if v := eval.Evaluate(soon, nil, at); len(v.Warnings) == 0 {
		t.Fatal("permit expiring within warn window should warn")
	}

	expired := dieselTruck("DL01AB1357")
	expired.PermitValidTo = at.AddDate(0, 0, -1)
	v := eval.Evaluate(expired, nil, at)
	if len(v.Warnings) == 0 {
		t.Fatal("expired permit should warn")
	}
	if !v.IsCompliant {
		t.Fatal("permit state warns but never violates")
	}
}

func TestLoadRulesOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	data := []byte("restrictedFrom: \"22:00\"\nrestrictedTo: \"06:00\"\npenalties:\n  odd_even_violation: 4000\npermitWarnDays: 14\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	if r.RestrictedFrom != "22:00" || r.RestrictedTo != "06:00" {
		t.Fatalf("interval not overlaid: %s-%s", r.RestrictedFrom, r.RestrictedTo)
	}
	if r.Penalties[model.ViolationOddEven] != 4000 {
		t.Fatalf("penalty not overlaid: %v", r.Penalties[model.ViolationOddEven])
	}
	if r.Penalties[model.ViolationPollution] != 10000 {
		t.Fatal("untouched penalties should keep defaults")
	}
	if r.PermitWarnDays != 14 {
		t.Fatalf("permitWarnDays not overlaid: %d", r.PermitWarnDays)
	}
	if len(r.OddEvenExemptFuels) == 0 {
		t.Fatal("exemptions absent from the file should keep defaults")
	}

	if def, err := LoadRules(""); err != nil || def.RestrictedFrom != "23:00" {
		t.Fatalf("empty path should return defaults, got %+v err %v", def, err)
	}
}

func TestAnalyzerDominantViolation(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	an := NewAnalyzer(eval)
	evenDay := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)

	lez := &model.Zone{ID: "z_lez", Type: model.ZoneCommercial, AllowedPollution: []model.PollutionClass{model.PollutionBS6, model.PollutionElectric}}
	stops := []model.Stop{{Type: model.StopDelivery, Zone: lez}}

	// v1 fails odd-even only (BS6 passes pollution), v2 fails pollution
	// only (CNG is odd-even exempt). One count each; declaration order
	// makes odd-even win the tie.
	v1 := dieselTruck("DL01AA1357")
	v1.ID = "v1"
	v1.PollutionClass = model.PollutionBS6
	v2 := dieselTruck("DL02BB2468")
	v2.ID = "v2"
	v2.FuelType = model.FuelCNG

	a := an.Analyze([]model.Vehicle{v1, v2}, stops, evenDay)
	if a.TotalVehicles != 2 || len(a.ViolatedVehicles) != 2 {
		t.Fatalf("both vehicles should violate, got %+v", a)
	}
	if a.MostCommonViolation != string(model.ViolationOddEven) {
		t.Fatalf("tie should break to odd-even, got %s", a.MostCommonViolation)
	}
	if a.ViolationCounts[model.ViolationOddEven] != 1 || a.ViolationCounts[model.ViolationPollution] != 1 {
		t.Fatalf("unexpected counts: %+v", a.ViolationCounts)
	}
}

func TestAnalyzerAllCompliant(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	an := NewAnalyzer(eval)
	oddDay := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	v1 := dieselTruck("DL01AA1357")
	v1.ID = "v1"
	a := an.Analyze([]model.Vehicle{v1}, nil, oddDay)
	if len(a.CompliantVehicles) != 1 || len(a.ViolatedVehicles) != 0 {
		t.Fatalf("expected a fully compliant pool, got %+v", a)
	}
	if a.MostCommonViolation != "none" {
		t.Fatalf("expected none, got %s", a.MostCommonViolation)
	}
}

func TestAnalyzerCountsPerVehicleOnce(t *testing.T) {
	eval := NewEvaluator(DefaultRules())
	an := NewAnalyzer(eval)
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	lez := &model.Zone{ID: "z_lez", Type: model.ZoneCommercial, AllowedPollution: []model.PollutionClass{model.PollutionBS6}}
	// Two stops in the same zone trip the same rule twice for the vehicle,
	// but the analyzer counts the type once.
	stops := []model.Stop{
		{Type: model.StopPickup, Zone: lez},
		{Type: model.StopDelivery, Zone: lez},
	}
	v1 := dieselTruck("DL01AA1357")
	v1.ID = "v1"
	a := an.Analyze([]model.Vehicle{v1}, stops, at)
	if a.ViolationCounts[model.ViolationPollution] != 1 {
		t.Fatalf("per-vehicle dedupe failed: %+v", a.ViolationCounts)
	}
}
