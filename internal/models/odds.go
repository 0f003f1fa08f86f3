package models

// OddsSet is the ordered set of runners priced for one race
type OddsSet struct {
	Race    Race     `json:"race"`
	Runners []Runner `json:"runners"`
}

// IsEmpty reports whether the race has no published runners
func (o *OddsSet) IsEmpty() bool {
	return len(o.Runners) == 0
}

// FieldSize returns the number of declared runners, falling back to priced runners
func (o *OddsSet) FieldSize() int {
	if len(o.Runners) > o.Race.DeclaredRunners {
		return len(o.Runners)
	}
	return o.Race.DeclaredRunners
}
