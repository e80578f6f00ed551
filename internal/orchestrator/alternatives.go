package orchestrator

import (
	"fmt"
	"sort"
	"time"

	"routeguard/internal/compliance"
	"routeguard/internal/model"
	"routeguard/internal/opt"
)

// Fare model used only to size the service-tier cost delta. Not a quote.
const (
	baseFare         = 50.0
	farePerKm        = 12.0
	premiumFareRatio = 1.6
)

// SuggestionEngine turns a failed vehicle search into concrete
// remediations. Every suggestion references actual fleet vehicles or
// windows derived from the request date; nothing is invented.
type SuggestionEngine struct {
	Eval     *compliance.Evaluator
	Analyzer *compliance.Analyzer
	Zones    map[string]model.Zone
}

func NewSuggestionEngine(eval *compliance.Evaluator, zones map[string]model.Zone) *SuggestionEngine {
	return &SuggestionEngine{Eval: eval, Analyzer: compliance.NewAnalyzer(eval), Zones: zones}
}

// Suggest analyzes why the pool failed the criteria and branches on the
// dominant violation type. The capacity and service-tier suggestions are
// independent of the dominant violation and appended when applicable.
func (s *SuggestionEngine) Suggest(vehicles []model.Vehicle, criteria model.SuggestCriteria) []model.AlternativeOption {
	stops := s.criteriaStops(criteria)
	at := criteria.Window.Start
	if at.IsZero() {
		at = time.Now()
	}
	analysis := s.Analyzer.Analyze(vehicles, stops, at)

	opts := []model.AlternativeOption{}
	switch model.ViolationType(analysis.MostCommonViolation) {
	case model.ViolationTimeRestriction:
		opts = append(opts, s.timeRestrictionOptions(vehicles, stops, at)...)
	case model.ViolationOddEven:
		opts = append(opts, s.oddEvenOptions(vehicles, criteria, at)...)
	case model.ViolationPollution:
		opts = append(opts, s.pollutionOptions(vehicles, stops, at)...)
	case model.ViolationZone:
		opts = append(opts, s.zoneRestrictionOptions(vehicles, stops, at)...)
	case model.ViolationWeightDimension:
		// handled by the capacity pass below
	}

	if o, ok := s.capacityOptions(vehicles, criteria); ok {
		opts = append(opts, o...)
	}
	if o, ok := s.tierSwapOption(criteria); ok {
		opts = append(opts, o)
	}
	return opts
}

func (s *SuggestionEngine) criteriaStops(c model.SuggestCriteria) []model.Stop {
	w := c.Window
	pickup := model.Stop{Location: c.Pickup, Type: model.StopPickup, Window: &w}
	drop := model.Stop{Location: c.Dropoff, Type: model.StopDelivery, Window: &w}
	if z, ok := s.Zones[c.ZoneID]; ok {
		zc := z
		drop.Zone = &zc
	}
	return []model.Stop{pickup, drop}
}

// compliantIDs filters the pool down to vehicles that clear every check
// for the given stops, keeping input order.
func (s *SuggestionEngine) compliantIDs(vehicles []model.Vehicle, stops []model.Stop, at time.Time) []string {
	ids := []string{}
	for _, v := range vehicles {
		if v.Status != model.StatusAvailable {
			continue
		}
		if s.Eval.Evaluate(v, stops, at).IsCompliant {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

func (s *SuggestionEngine) timeRestrictionOptions(vehicles []model.Vehicle, stops []model.Stop, at time.Time) []model.AlternativeOption {
	out := []model.AlternativeOption{}
	if ids := s.compliantIDs(vehicles, stops, at); len(ids) > 0 {
		out = append(out, model.AlternativeOption{
			Type:                "different_vehicle",
			Suggestion:          "use a smaller or hour-exempt vehicle that can enter the zone during the requested window",
			AlternativeVehicles: ids,
		})
	}
	if windows := unrestrictedWindows(at); len(windows) > 0 {
		out = append(out, model.AlternativeOption{
			Type:                   "different_time",
			Suggestion:             "shift the delivery into standard unrestricted daytime windows",
			AlternativeTimeWindows: windows,
		})
	}
	return out
}

func (s *SuggestionEngine) oddEvenOptions(vehicles []model.Vehicle, c model.SuggestCriteria, at time.Time) []model.AlternativeOption {
	out := []model.AlternativeOption{}
	ids := []string{}
	for _, v := range vehicles {
		if v.Status != model.StatusAvailable {
			continue
		}
		if s.Eval.OddEvenCompliant(v, at) {
			ids = append(ids, v.ID)
		}
	}
	if len(ids) > 0 {
		out = append(out, model.AlternativeOption{
			Type:                "different_vehicle",
			Suggestion:          "assign an exempt or correctly plated vehicle for today's odd-even rule",
			AlternativeVehicles: ids,
		})
	}
	if !c.Window.Start.IsZero() {
		out = append(out, model.AlternativeOption{
			Type:       "different_time",
			Suggestion: "move the delivery to the next calendar day when the plate parity flips",
			AlternativeTimeWindows: []model.TimeWindow{{
				Start: c.Window.Start.AddDate(0, 0, 1),
				End:   c.Window.End.AddDate(0, 0, 1),
			}},
		})
	}
	return out
}

func (s *SuggestionEngine) pollutionOptions(vehicles []model.Vehicle, stops []model.Stop, at time.Time) []model.AlternativeOption {
	ids := []string{}
	for _, v := range vehicles {
		if v.Status != model.StatusAvailable {
			continue
		}
		if v.PollutionClass == model.PollutionElectric || v.PollutionClass == model.PollutionBS6 {
			if s.Eval.Evaluate(v, stops, at).IsCompliant {
				ids = append(ids, v.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return []model.AlternativeOption{{
		Type:                "different_vehicle",
		Suggestion:          "use an electric or BS6 vehicle admitted by the zone's pollution policy",
		AlternativeVehicles: ids,
	}}
}

func (s *SuggestionEngine) zoneRestrictionOptions(vehicles []model.Vehicle, stops []model.Stop, at time.Time) []model.AlternativeOption {
	out := []model.AlternativeOption{}
	if ids := s.compliantIDs(vehicles, stops, at); len(ids) > 0 {
		out = append(out, model.AlternativeOption{
			Type:                "different_vehicle",
			Suggestion:          "use a vehicle holding access privileges for the destination zone",
			AlternativeVehicles: ids,
		})
	}
	// Handing over at the zone boundary avoids the access rule entirely
	// when no privileged vehicle exists.
	if len(out) == 0 {
		for _, st := range stops {
			if st.Zone != nil {
				out = append(out, model.AlternativeOption{
					Type:                 "different_location",
					Suggestion:           fmt.Sprintf("hand over at the %s boundary and complete the last leg with a permitted carrier", st.Zone.Name),
					AlternativeLocations: []model.GeoPoint{st.Location},
				})
				break
			}
		}
	}
	return out
}

// capacityOptions suggests bigger vehicles, or a two-way load split when
// the shipment is at least twice any single vehicle's capacity.
func (s *SuggestionEngine) capacityOptions(vehicles []model.Vehicle, c model.SuggestCriteria) ([]model.AlternativeOption, bool) {
	if c.WeightKg <= 0 {
		return nil, false
	}
	fitting := []string{}
	maxCap := 0.0
	for _, v := range vehicles {
		if v.Status != model.StatusAvailable {
			continue
		}
		if v.Capacity.WeightKg > maxCap {
			maxCap = v.Capacity.WeightKg
		}
		if v.Capacity.WeightKg >= c.WeightKg && (c.VolumeM3 <= 0 || v.Capacity.VolumeM3 >= c.VolumeM3) {
			fitting = append(fitting, v.ID)
		}
	}
	if len(fitting) > 0 {
		return []model.AlternativeOption{{
			Type:                "larger_vehicle",
			Suggestion:          fmt.Sprintf("use a vehicle rated for the full %.0f kg load", c.WeightKg),
			AlternativeVehicles: fitting,
		}}, true
	}
	if maxCap > 0 && c.WeightKg >= 2*maxCap {
		half := c.WeightKg / 2
		halves := []string{}
		for _, v := range vehicles {
			if v.Status == model.StatusAvailable && v.Capacity.WeightKg >= half {
				halves = append(halves, v.ID)
			}
		}
		sort.Strings(halves)
		if len(halves) >= 2 {
			return []model.AlternativeOption{{
				Type:                "load_split",
				Suggestion:          fmt.Sprintf("split the %.0f kg shipment across two vehicles of at least %.0f kg each", c.WeightKg, half),
				AlternativeVehicles: halves[:2],
			}}, true
		}
	}
	return nil, false
}

func (s *SuggestionEngine) tierSwapOption(c model.SuggestCriteria) (model.AlternativeOption, bool) {
	if c.ServiceType == "" {
		return model.AlternativeOption{}, false
	}
	km := opt.Haversine(c.Pickup, c.Dropoff)
	shared := baseFare + farePerKm*km
	premium := shared * premiumFareRatio
	switch c.ServiceType {
	case model.ServiceDedicatedPremium:
		return model.AlternativeOption{
			Type:             "service_downgrade",
			Suggestion:       "switch to shared service for a lower fare if the window allows consolidation",
			EstimatedSavings: premium - shared,
		}, true
	case model.ServiceShared:
		return model.AlternativeOption{
			Type:             "service_upgrade",
			Suggestion:       "upgrade to dedicated premium for guaranteed window adherence",
			EstimatedSavings: shared - premium,
		}, true
	}
	return model.AlternativeOption{}, false
}

// unrestrictedWindows returns the standard daytime slots still ahead of
// the reference instant, rolling to the next day when both have passed.
func unrestrictedWindows(after time.Time) []model.TimeWindow {
	day := time.Date(after.Year(), after.Month(), after.Day(), 0, 0, 0, 0, after.Location())
	slots := []model.TimeWindow{
		{Start: day.Add(7 * time.Hour), End: day.Add(11 * time.Hour)},
		{Start: day.Add(14 * time.Hour), End: day.Add(18 * time.Hour)},
	}
	out := []model.TimeWindow{}
	for _, s := range slots {
		if s.End.After(after) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		next := day.AddDate(0, 0, 1)
		out = append(out,
			model.TimeWindow{Start: next.Add(7 * time.Hour), End: next.Add(11 * time.Hour)},
			model.TimeWindow{Start: next.Add(14 * time.Hour), End: next.Add(18 * time.Hour)},
		)
	}
	return out
}
