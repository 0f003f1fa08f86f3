package datasource

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/models"
)

// FieldNames lists the candidate JSON keys for each provider attribute.
// The first key present in an object wins.
type FieldNames struct {
	Races     []string
	RaceID    []string
	Track     []string
	Time      []string
	Country   []string
	RaceType  []string
	Distance  []string
	Runners   []string
	Name      []string
	WinOdds   []string
	PlaceOdds []string
	WinProb   []string
	PlaceProb []string
}

// DefaultFieldNames returns the field names of the reference racing API
func DefaultFieldNames() FieldNames {
	return FieldNames{
		Races:     []string{"races", "data", "results"},
		RaceID:    []string{"id", "race_id"},
		Track:     []string{"track", "course", "venue"},
		Time:      []string{"time", "off_time", "start_time"},
		Country:   []string{"country", "region"},
		RaceType:  []string{"type", "race_type"},
		Distance:  []string{"distance", "distance_m"},
		Runners:   []string{"runners"},
		Name:      []string{"name", "horse"},
		WinOdds:   []string{"odds_decimal", "win_odds"},
		PlaceOdds: []string{"place_odds"},
		WinProb:   []string{"win_prob"},
		PlaceProb: []string{"place_prob"},
	}
}

// FieldNamesFromConfig overlays configured field names on the defaults
func FieldNamesFromConfig(cfg config.FieldsConfig) FieldNames {
	f := DefaultFieldNames()
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&f.Races, cfg.Races)
	pick(&f.RaceID, cfg.RaceID)
	pick(&f.Track, cfg.Track)
	pick(&f.Time, cfg.Time)
	pick(&f.Country, cfg.Country)
	pick(&f.RaceType, cfg.RaceType)
	pick(&f.Distance, cfg.Distance)
	pick(&f.Runners, cfg.Runners)
	pick(&f.Name, cfg.Name)
	pick(&f.WinOdds, cfg.WinOdds)
	pick(&f.PlaceOdds, cfg.PlaceOdds)
	pick(&f.WinProb, cfg.WinProb)
	pick(&f.PlaceProb, cfg.PlaceProb)
	return f
}

type object = map[string]interface{}

func lookup(obj object, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func hasNull(obj object, keys []string) bool {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v == nil {
			return true
		}
	}
	return false
}

func stringField(obj object, keys []string) string {
	v, ok := lookup(obj, keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func intField(obj object, keys []string) *int {
	v, ok := lookup(obj, keys)
	if !ok {
		return nil
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	n := int(d.IntPart())
	return &n
}

// listField returns the array stored under keys, or the payload itself when it is already an array.
// A key present with a null value is an empty list.
func listField(payload interface{}, keys []string) ([]interface{}, bool) {
	switch t := payload.(type) {
	case []interface{}:
		return t, true
	case object:
		v, ok := lookup(t, keys)
		if !ok {
			if hasNull(t, keys) {
				return []interface{}{}, true
			}
			return nil, false
		}
		list, ok := v.([]interface{})
		return list, ok
	default:
		return nil, false
	}
}

// ParseOdds converts a decimal odds value to float64.
// Accepts JSON numbers, decimal strings, fractional strings ("5/2" is 3.5) and "evens".
func ParseOdds(v interface{}) (float64, error) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case float64:
		return t, nil
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, fmt.Errorf("%w: odds of type %T", models.ErrMalformedResponse, v)
	}

	switch strings.ToLower(s) {
	case "evens", "evs", "even":
		return 2.0, nil
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := decimal.NewFromString(strings.TrimSpace(num))
		if err != nil {
			return 0, fmt.Errorf("%w: fractional odds %q", models.ErrMalformedResponse, s)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(den))
		if err != nil || d.IsZero() {
			return 0, fmt.Errorf("%w: fractional odds %q", models.ErrMalformedResponse, s)
		}
		f, _ := n.Div(d).Add(decimal.NewFromInt(1)).Float64()
		return f, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: odds %q", models.ErrMalformedResponse, s)
	}
	f, _ := d.Float64()
	return f, nil
}

func optionalFloat(obj object, keys []string) (*float64, error) {
	v, ok := lookup(obj, keys)
	if !ok {
		return nil, nil
	}
	f, err := ParseOdds(v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseStartTime accepts full timestamps or a bare "15:04" on the query date
func parseStartTime(s string, day time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parseRaceType maps provider race codes to flat or jumps
func parseRaceType(s string) models.RaceType {
	switch strings.ToLower(s) {
	case "flat", "f":
		return models.RaceTypeFlat
	case "jumps", "hurdle", "chase", "nh", "national hunt", "nhf":
		return models.RaceTypeJumps
	default:
		return ""
	}
}
