// Package window normalizes raw visit submissions into canonical UTC time
// ranges and enforces duration and business-hours policy. It has no
// dependencies beyond the standard time package and never touches storage.
package window

import (
	"fmt"
	"time"

	"github.com/example/visitbook/internal/util"
)

// Accepted layouts for visitor-supplied local datetimes. Values carrying an
// explicit offset are honored as-is; bare values are interpreted in the
// visitor's declared timezone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var offsetLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04Z07:00",
}

// Submission is the untrusted payload as received from the visitor. All
// fields are raw strings except the two booleans.
type Submission struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	Timezone      string `json:"timezone"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Purpose       string `json:"purpose"`
	Notes         string `json:"notes"`
	NeedsMeetLink bool   `json:"needs_meet_link"`
	IsUrgent      bool   `json:"is_urgent"`
}

// Policy carries the duration and business-window rules.
type Policy struct {
	MinDuration      time.Duration
	MaxDuration      time.Duration
	BusinessLocation *time.Location
	OpenHour         int
	CloseHour        int
}

// Normalized is the canonical form of a valid submission.
type Normalized struct {
	Name                 string
	Email                string
	Phone                string
	Purpose              string
	Notes                string
	NeedsMeetLink        bool
	IsUrgent             bool
	VisitorTimezone      string
	StartUTC             time.Time
	EndUTC               time.Time
	OutsideWorkingWindow bool
}

// Result is the outcome of Normalize. Normalized is only meaningful when
// Errors is empty; the diagnostic flags are populated whenever the time
// fields were parseable, so callers can report them even on rejection.
type Result struct {
	Normalized           *Normalized
	Errors               []string
	OutsideWorkingWindow bool
	RequiresUrgent       bool
}

// OK reports whether the submission passed every check.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Normalize validates and canonicalizes a submission. All checks run and
// accumulate errors rather than stopping at the first failure; the
// business-rule checks on the time window only run once both endpoints
// parsed and the timezone resolved.
func Normalize(sub Submission, pol Policy) Result {
	var result Result
	var errs []string

	email := util.SanitizeString(sub.Email)
	phone := util.SanitizeString(sub.Phone)

	if email == "" && phone == "" {
		errs = append(errs, "at least one of email or phone is required")
	}
	if email != "" {
		if err := util.ValidateEmail(email); err != nil {
			errs = append(errs, "email address is not valid")
		}
	}
	if phone != "" {
		if err := util.ValidatePhone(phone); err != nil {
			errs = append(errs, "phone number is not valid")
		}
	}

	loc, tzErr := loadTimezone(sub.Timezone)
	if tzErr != nil {
		errs = append(errs, fmt.Sprintf("timezone %q is not a valid IANA zone", sub.Timezone))
	}

	start, startErr := parseLocal(sub.Start, loc)
	if startErr != nil {
		errs = append(errs, "start time is missing or not a valid datetime")
	}
	end, endErr := parseLocal(sub.End, loc)
	if endErr != nil {
		errs = append(errs, "end time is missing or not a valid datetime")
	}

	shapeOK := tzErr == nil && startErr == nil && endErr == nil
	if shapeOK {
		if !end.After(start) {
			errs = append(errs, "end time must be after start time")
		} else {
			duration := end.Sub(start)
			if duration < pol.MinDuration {
				errs = append(errs, fmt.Sprintf("visit must be at least %s long", formatHours(pol.MinDuration)))
			}
			if duration > pol.MaxDuration {
				errs = append(errs, fmt.Sprintf("visit must be at most %s long", formatHours(pol.MaxDuration)))
			}
		}

		if !onTheHour(start, loc) || !onTheHour(end, loc) {
			errs = append(errs, "start and end must be exactly on the hour in your timezone")
		}

		outside := outsideWorkingWindow(start, end, pol)
		result.OutsideWorkingWindow = outside
		if outside && !sub.IsUrgent {
			result.RequiresUrgent = true
			errs = append(errs, fmt.Sprintf(
				"requested time falls outside business hours (%02d:00-%02d:00 %s); mark the visit as urgent to request it anyway",
				pol.OpenHour, pol.CloseHour, pol.BusinessLocation.String()))
		}
	}

	result.Errors = errs
	if len(errs) > 0 {
		return result
	}

	result.Normalized = &Normalized{
		Name:                 util.SanitizeString(sub.Name),
		Email:                email,
		Phone:                phone,
		Purpose:              util.SanitizeString(sub.Purpose),
		Notes:                util.SanitizeString(sub.Notes),
		NeedsMeetLink:        sub.NeedsMeetLink,
		IsUrgent:             sub.IsUrgent,
		VisitorTimezone:      loc.String(),
		StartUTC:             start.UTC(),
		EndUTC:               end.UTC(),
		OutsideWorkingWindow: result.OutsideWorkingWindow,
	}
	return result
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	// LoadLocation accepts "Local"; a visitor-declared zone must be concrete.
	if loc == time.Local {
		return nil, fmt.Errorf("ambiguous timezone")
	}
	return loc, nil
}

// parseLocal parses a visitor datetime. Bare values are interpreted in loc;
// values with an explicit offset keep it. loc may be nil when the timezone
// itself failed to resolve, in which case only offset layouts can succeed.
func parseLocal(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if loc != nil {
		for _, layout := range localLayouts {
			if t, err := time.ParseInLocation(layout, value, loc); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format: %s", value)
}

func onTheHour(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	return local.Minute() == 0 && local.Second() == 0 && local.Nanosecond() == 0
}

// outsideWorkingWindow reports whether the range escapes the same-day
// business window. Both endpoints are evaluated in the business timezone
// regardless of the visitor's declared zone.
func outsideWorkingWindow(start, end time.Time, pol Policy) bool {
	s := start.In(pol.BusinessLocation)
	e := end.In(pol.BusinessLocation)

	if s.Year() != e.Year() || s.YearDay() != e.YearDay() {
		return true
	}

	open := time.Date(s.Year(), s.Month(), s.Day(), pol.OpenHour, 0, 0, 0, pol.BusinessLocation)
	close := time.Date(s.Year(), s.Month(), s.Day(), pol.CloseHour, 0, 0, 0, pol.BusinessLocation)
	return s.Before(open) || e.After(close)
}

func formatHours(d time.Duration) string {
	hours := d.Hours()
	if hours == float64(int(hours)) {
		return fmt.Sprintf("%d hours", int(hours))
	}
	return d.String()
}
