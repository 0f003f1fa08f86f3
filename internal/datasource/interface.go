package datasource

import (
	"context"
	"time"

	"github.com/yourusername/racing-value/internal/models"
)

// RaceQuery selects the races listed by a catalog
type RaceQuery struct {
	Date     time.Time
	Country  string
	RaceType models.RaceType
}

// DateString returns the query date as YYYY-MM-DD
func (q RaceQuery) DateString() string {
	return q.Date.Format("2006-01-02")
}

// RaceCatalog lists the races scheduled for a day.
// An empty slice with a nil error means there is no racing that day.
type RaceCatalog interface {
	ListRaces(ctx context.Context, q RaceQuery) ([]models.Race, error)

	// Name returns the name of the data source
	Name() string
}

// OddsSource prices the runners of a race.
// An empty OddsSet with a nil error means the race has no runner data and should be skipped.
type OddsSource interface {
	GetRunners(ctx context.Context, race models.Race) (models.OddsSet, error)

	// Name returns the name of the data source
	Name() string
}

// Authenticator supplies access tokens for providers that require them.
// Invalidate drops the cached token after the provider rejected it.
type Authenticator interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(reason string)
}
