package compliance

import (
	"fmt"
	"strconv"
	"time"

	"routeguard/internal/model"
)

// Evaluator applies the five regulation checks. It holds only immutable
// rule configuration and is safe for concurrent use.
type Evaluator struct {
	rules Rules
}

func NewEvaluator(rules Rules) *Evaluator {
	return &Evaluator{rules: rules}
}

func (e *Evaluator) Rules() Rules { return e.rules }

// Evaluate returns the compliance verdict for moving vehicle v along stops
// at the given time. Checks run independently and violations are additive;
// nothing short-circuits.
func (e *Evaluator) Evaluate(v model.Vehicle, stops []model.Stop, at time.Time) model.ComplianceVerdict {
	verdict := model.ComplianceVerdict{Violations: []model.Violation{}}

	e.checkTimeRestriction(&verdict, v, stops, at)
	e.checkOddEven(&verdict, v, at)
	e.checkPollution(&verdict, v, stops, at)
	e.checkZoneAccess(&verdict, v, stops, at)
	e.checkWeightDimension(&verdict, v, stops, at)

	if !v.PermitValidTo.IsZero() {
		if v.PermitValidTo.Before(at) {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("permit for %s expired on %s", v.ID, v.PermitValidTo.Format("2006-01-02")))
		} else if v.PermitValidTo.Before(at.AddDate(0, 0, e.rules.PermitWarnDays)) {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("permit for %s expires on %s", v.ID, v.PermitValidTo.Format("2006-01-02")))
		}
	}

	verdict.IsCompliant = len(verdict.Violations) == 0
	verdict.SuggestedActions = suggestedActions(verdict.Violations)
	return verdict
}

func (e *Evaluator) checkTimeRestriction(out *model.ComplianceVerdict, v model.Vehicle, stops []model.Stop, at time.Time) {
	if v.Access.RestrictedHours {
		return
	}
	for _, s := range stops {
		if s.Zone == nil || s.Zone.Type != model.ZoneResidential {
			continue
		}
		from, to := e.rules.RestrictedFrom, e.rules.RestrictedTo
		if s.Zone.RestrictedFrom != "" && s.Zone.RestrictedTo != "" {
			from, to = s.Zone.RestrictedFrom, s.Zone.RestrictedTo
		}
		hit := false
		if s.Window != nil {
			hit = windowTouchesInterval(*s.Window, from, to)
		} else {
			hit = clockInInterval(at, from, to)
		}
		if hit {
			out.Violations = append(out.Violations, model.Violation{
				Type:      model.ViolationTimeRestriction,
				Severity:  model.SeverityHigh,
				Penalty:   e.rules.penalty(model.ViolationTimeRestriction),
				Location:  s.Location,
				Timestamp: at,
				Detail:    fmt.Sprintf("residential zone %s restricted %s-%s", s.Zone.ID, from, to),
			})
		}
	}
}

func (e *Evaluator) checkOddEven(out *model.ComplianceVerdict, v model.Vehicle, at time.Time) {
	if e.rules.oddEvenExempt(v) {
		return
	}
	digit, ok := lastPlateDigit(v.PlateNumber)
	if !ok {
		out.Warnings = append(out.Warnings, fmt.Sprintf("plate %q has no digit; odd-even not checked", v.PlateNumber))
		return
	}
	if digit%2 != at.Day()%2 {
		out.Violations = append(out.Violations, model.Violation{
			Type:      model.ViolationOddEven,
			Severity:  model.SeverityMedium,
			Penalty:   e.rules.penalty(model.ViolationOddEven),
			Location:  v.Location,
			Timestamp: at,
			Detail:    fmt.Sprintf("plate ends in %d on day %d", digit, at.Day()),
		})
	}
}

func (e *Evaluator) checkPollution(out *model.ComplianceVerdict, v model.Vehicle, stops []model.Stop, at time.Time) {
	for _, s := range stops {
		if s.Zone == nil || len(s.Zone.AllowedPollution) == 0 {
			continue
		}
		allowed := false
		for _, p := range s.Zone.AllowedPollution {
			if v.PollutionClass == p {
				allowed = true
				break
			}
		}
		if !allowed {
			out.Violations = append(out.Violations, model.Violation{
				Type:      model.ViolationPollution,
				Severity:  model.SeverityHigh,
				Penalty:   e.rules.penalty(model.ViolationPollution),
				Location:  s.Location,
				Timestamp: at,
				Detail:    fmt.Sprintf("class %s not allowed in zone %s", v.PollutionClass, s.Zone.ID),
			})
		}
	}
}

func (e *Evaluator) checkZoneAccess(out *model.ComplianceVerdict, v model.Vehicle, stops []model.Stop, at time.Time) {
	for _, s := range stops {
		if s.Zone == nil {
			continue
		}
		missing := ""
		switch s.Zone.Type {
		case model.ZoneResidential:
			if !v.Access.Residential {
				missing = "residential"
			}
		case model.ZoneCommercial:
			if !v.Access.Commercial {
				missing = "commercial"
			}
		case model.ZoneIndustrial:
			if !v.Access.Industrial {
				missing = "industrial"
			}
		}
		if missing == "" && s.Zone.NarrowLanes && !v.Access.NarrowLanes {
			missing = "narrow-lane"
		}
		if missing != "" {
			out.Violations = append(out.Violations, model.Violation{
				Type:      model.ViolationZone,
				Severity:  model.SeverityMedium,
				Penalty:   e.rules.penalty(model.ViolationZone),
				Location:  s.Location,
				Timestamp: at,
				Detail:    fmt.Sprintf("vehicle lacks %s access for zone %s", missing, s.Zone.ID),
			})
		}
	}
}

func (e *Evaluator) checkWeightDimension(out *model.ComplianceVerdict, v model.Vehicle, stops []model.Stop, at time.Time) {
	for _, s := range stops {
		if s.Zone == nil {
			continue
		}
		over := ""
		if s.Zone.MaxWeightKg > 0 && v.Capacity.WeightKg > s.Zone.MaxWeightKg {
			over = fmt.Sprintf("weight %.0fkg exceeds zone cap %.0fkg", v.Capacity.WeightKg, s.Zone.MaxWeightKg)
		} else if !v.Capacity.Dimensions.Fits(s.Zone.MaxDimensions) {
			over = "dimensions exceed zone limit"
		}
		if over != "" {
			out.Violations = append(out.Violations, model.Violation{
				Type:      model.ViolationWeightDimension,
				Severity:  model.SeverityHigh,
				Penalty:   e.rules.penalty(model.ViolationWeightDimension),
				Location:  s.Location,
				Timestamp: at,
				Detail:    fmt.Sprintf("zone %s: %s", s.Zone.ID, over),
			})
		}
	}
}

// OddEvenCompliant reports the odd-even outcome alone, for callers that
// only need the parity rule (e.g. next-day window suggestions).
func (e *Evaluator) OddEvenCompliant(v model.Vehicle, on time.Time) bool {
	if e.rules.oddEvenExempt(v) {
		return true
	}
	digit, ok := lastPlateDigit(v.PlateNumber)
	if !ok {
		return true
	}
	return digit%2 == on.Day()%2
}

func lastPlateDigit(plate string) (int, bool) {
	for i := len(plate) - 1; i >= 0; i-- {
		if plate[i] >= '0' && plate[i] <= '9' {
			return int(plate[i] - '0'), true
		}
	}
	return 0, false
}

// clockInInterval reports whether t's time of day falls inside [from,to),
// where the interval may wrap midnight (23:00-07:00).
func clockInInterval(t time.Time, from, to string) bool {
	m := t.Hour()*60 + t.Minute()
	fm, ok1 := parseClock(from)
	tm, ok2 := parseClock(to)
	if !ok1 || !ok2 {
		return false
	}
	if fm <= tm {
		return m >= fm && m < tm
	}
	return m >= fm || m < tm
}

// windowTouchesInterval reports whether the window overlaps the
// restricted interval anywhere on the 24h clock. Both ranges may wrap
// midnight, so each is cut into linear minute segments and intersected;
// endpoint checks alone would miss a window that fully contains the ban
// (22:00-08:00 against 23:00-07:00).
func windowTouchesInterval(w model.TimeWindow, from, to string) bool {
	fm, ok1 := parseClock(from)
	tm, ok2 := parseClock(to)
	if !ok1 || !ok2 || fm == tm {
		return false
	}
	// A window of a day or longer covers every clock minute.
	if w.End.Sub(w.Start) >= 24*time.Hour {
		return true
	}
	ws := w.Start.Hour()*60 + w.Start.Minute()
	we := w.End.Hour()*60 + w.End.Minute()
	if ws == we {
		return clockInInterval(w.Start, from, to)
	}
	for _, a := range splitClockRange(ws, we) {
		for _, b := range splitClockRange(fm, tm) {
			if a[0] < b[1] && b[0] < a[1] {
				return true
			}
		}
	}
	return false
}

// splitClockRange cuts a possibly midnight-wrapping [from,to) minute
// range into linear segments within a single day.
func splitClockRange(from, to int) [][2]int {
	if from < to {
		return [][2]int{{from, to}}
	}
	return [][2]int{{from, 24 * 60}, {0, to}}
}

func parseClock(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[3:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func suggestedActions(violations []model.Violation) []string {
	seen := map[model.ViolationType]bool{}
	out := []string{}
	for _, v := range violations {
		if seen[v.Type] {
			continue
		}
		seen[v.Type] = true
		switch v.Type {
		case model.ViolationTimeRestriction:
			out = append(out, "shift the delivery window outside restricted hours or use a vehicle with restricted-hours access")
		case model.ViolationOddEven:
			out = append(out, "use an exempt vehicle (electric/CNG/three-wheeler) or move to the next calendar day")
		case model.ViolationPollution:
			out = append(out, "use an electric or BS6 vehicle for this zone")
		case model.ViolationZone:
			out = append(out, "use a vehicle with access privileges matching the zone")
		case model.ViolationWeightDimension:
			out = append(out, "split the load or use a smaller vehicle under the zone limits")
		}
	}
	return out
}
