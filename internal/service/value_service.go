package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/auth"
	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/config"
	"github.com/yourusername/racing-value/internal/credentials"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/metrics"
	"github.com/yourusername/racing-value/internal/models"
	"github.com/yourusername/racing-value/internal/tracing"
	"github.com/yourusername/racing-value/internal/valuebet"
)

// DefaultMaxRaces caps how many races one run evaluates
const DefaultMaxRaces = 5

// Degraded-state notices shown in place of results
const (
	NoticeNoRaces            = "no races today"
	NoticeCatalogUnavailable = "race catalog unavailable"
	NoticeNoRunnerData       = "no runner data available"
	NoticeNoValidOdds        = "no valid odds"
	NoticeNoValueBets        = "no value bets"
	NoticeNoData             = "no data: authentication failed"
)

// Race evaluation outcomes recorded in metrics
const (
	outcomeEvaluated = "evaluated"
	outcomeSkipped   = "skipped"
)

// SessionResetter starts a fresh authentication session for each run
type SessionResetter interface {
	ResetFailure()
}

// ServiceOptions configures a ValueBetService
type ServiceOptions struct {
	MaxRaces     int
	Threshold    float64
	PositiveOnly bool
	Engine       valuebet.EngineConfig
}

// ServiceOptionsFromConfig derives service options from the engine configuration
func ServiceOptionsFromConfig(cfg config.EngineConfig) ServiceOptions {
	return ServiceOptions{
		MaxRaces:     cfg.MaxRaces,
		Threshold:    cfg.MinEV,
		PositiveOnly: cfg.PositiveOnly,
		Engine:       valuebet.EngineConfigFromConfig(cfg),
	}
}

// RunReport is the outcome of one value bet run, grouped by race
type RunReport struct {
	RunID       string              `json:"run_id"`
	Date        string              `json:"date"`
	Country     string              `json:"country"`
	RaceType    models.RaceType     `json:"race_type"`
	Races       []models.RaceReport `json:"races"`
	ValueBets   int                 `json:"value_bets"`
	Notice      string              `json:"notice,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ValueBetService runs the catalog, odds, normalization, evaluation and aggregation steps
// for one race query
type ValueBetService struct {
	catalog    datasource.RaceCatalog
	odds       datasource.OddsSource
	session    SessionResetter
	normalizer *valuebet.Normalizer
	engine     *valuebet.Engine
	aggregator *valuebet.Aggregator
	maxRaces   int
	clock      clock.Clock
	logger     *logger.PipelineLogger
}

// NewValueBetService creates a value bet service. session may be nil when no provider authenticates.
func NewValueBetService(
	catalog datasource.RaceCatalog,
	odds datasource.OddsSource,
	session SessionResetter,
	opts ServiceOptions,
	clk clock.Clock,
	log *logrus.Logger,
) *ValueBetService {
	if opts.MaxRaces <= 0 {
		opts.MaxRaces = DefaultMaxRaces
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &ValueBetService{
		catalog:    catalog,
		odds:       odds,
		session:    session,
		normalizer: valuebet.NewNormalizer(),
		engine:     valuebet.NewEngine(opts.Engine),
		aggregator: valuebet.NewAggregator(opts.Threshold, opts.PositiveOnly),
		maxRaces:   opts.MaxRaces,
		clock:      clk,
		logger:     logger.NewPipelineLogger(log),
	}
}

// Run evaluates the races matching q. Provider failures are contained per race and surface
// as notices. A missing credential or a failed authentication is returned as an error
// together with whatever was reported before it.
func (s *ValueBetService) Run(ctx context.Context, q datasource.RaceQuery) (*RunReport, error) {
	ctx, end := tracing.StartSegment(ctx, "value-bet-run")
	report, err := s.run(ctx, q)

	tracing.AddAnnotation(ctx, "run_id", report.RunID)
	tracing.AddAnnotation(ctx, "country", report.Country)
	tracing.AddAnnotation(ctx, "value_bets", report.ValueBets)
	end(err)

	return report, err
}

func (s *ValueBetService) run(ctx context.Context, q datasource.RaceQuery) (*RunReport, error) {
	start := s.clock.Now()
	report := &RunReport{
		RunID:    uuid.New().String(),
		Date:     q.DateString(),
		Country:  q.Country,
		RaceType: q.RaceType,
		Races:    []models.RaceReport{},
	}
	plog := s.logger.WithRun(report.RunID)
	plog.LogRunStarted(report.Date, q.Country, string(q.RaceType), s.maxRaces)

	if s.session != nil {
		s.session.ResetFailure()
	}

	defer func() {
		report.GeneratedAt = s.clock.Now()
		elapsed := report.GeneratedAt.Sub(start)
		metrics.RecordRun(elapsed.Seconds(), report.ValueBets, float64(report.GeneratedAt.Unix()))
		plog.LogRunCompleted(len(report.Races), countReported(report.Races), report.ValueBets,
			float64(elapsed.Microseconds())/1000)
	}()

	races, err := s.catalog.ListRaces(ctx, q)
	if err != nil {
		if fatal := fatalError(err); fatal != nil {
			report.Notice = noticeFor(fatal)
			return report, fatal
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		plog.WithError(err).Warn("Race catalog unavailable")
		report.Notice = NoticeCatalogUnavailable
		return report, nil
	}

	if len(races) == 0 {
		report.Notice = NoticeNoRaces
		return report, nil
	}
	if len(races) > s.maxRaces {
		races = races[:s.maxRaces]
	}

	for i, race := range races {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		raceReport, err := s.evaluateRace(ctx, plog, race)
		if err != nil {
			// Authentication is gone for this run, the remaining races have no data.
			for _, rest := range races[i:] {
				report.Races = append(report.Races, models.RaceReport{
					Race:    rest,
					Results: []models.ValueBetResult{},
					Notice:  NoticeNoRunnerData,
				})
			}
			report.Notice = noticeFor(err)
			return report, err
		}

		report.ValueBets += s.aggregator.CountValue(raceReport.Results)
		report.Races = append(report.Races, raceReport)
	}

	return report, nil
}

// evaluateRace fetches and rates one race. Only fatal errors are returned.
func (s *ValueBetService) evaluateRace(ctx context.Context, plog *logger.PipelineLogger, race models.Race) (models.RaceReport, error) {
	started := s.clock.Now()
	rr := models.RaceReport{Race: race, Results: []models.ValueBetResult{}}

	set, err := s.odds.GetRunners(ctx, race)
	if err != nil {
		if fatal := fatalError(err); fatal != nil {
			return rr, fatal
		}
		if ctx.Err() != nil {
			return rr, ctx.Err()
		}
		plog.LogRaceSkipped(race.ID, race.Track, NoticeNoRunnerData, err)
		metrics.RecordRaceEvaluated(outcomeSkipped, 0)
		rr.Notice = NoticeNoRunnerData
		return rr, nil
	}
	if set.IsEmpty() {
		plog.LogRaceSkipped(race.ID, race.Track, NoticeNoRunnerData, nil)
		metrics.RecordRaceEvaluated(outcomeSkipped, 0)
		rr.Notice = NoticeNoRunnerData
		return rr, nil
	}

	norm := s.normalizer.Normalize(set)
	metrics.RecordInvalidOdds(len(norm.Invalid))
	for name, invalid := range norm.Invalid {
		plog.WithFields(logrus.Fields{
			"race_id": race.ID,
			"runner":  name,
		}).WithError(invalid).Warn("Runner excluded from normalization")
	}

	results := s.engine.Evaluate(set, norm, set.FieldSize())
	rr.Results = s.aggregator.Aggregate(results)

	valueBets := 0
	for i := range results {
		r := &results[i]
		if !r.IsValue(s.aggregator.Threshold) {
			continue
		}
		valueBets++
		metrics.RecordValueBet(string(r.BestBetType))
		plog.LogValueBet(race.ID, r.Runner.Name, string(r.BestBetType), r.Runner.WinOdds, r.BestEV)
	}

	switch {
	case norm.ValidCount() == 0:
		rr.Notice = NoticeNoValidOdds
		metrics.RecordRaceEvaluated(outcomeSkipped, 0)
	case valueBets == 0:
		rr.Notice = NoticeNoValueBets
		metrics.RecordRaceEvaluated(outcomeEvaluated, norm.Overround)
	default:
		metrics.RecordRaceEvaluated(outcomeEvaluated, norm.Overround)
	}

	plog.LogRaceEvaluated(race.ID, race.Track, len(results), len(norm.Invalid), valueBets,
		norm.Overround, float64(s.clock.Now().Sub(started).Microseconds())/1000)

	return rr, nil
}

// fatalError returns the session-level failure wrapped in err, if any
func fatalError(err error) error {
	switch {
	case errors.Is(err, credentials.ErrCredentialMissing):
		return fmt.Errorf("value bet run aborted: %w", err)
	case errors.Is(err, auth.ErrAuthFailure):
		return fmt.Errorf("value bet run aborted: %w", err)
	default:
		return nil
	}
}

func noticeFor(err error) string {
	if errors.Is(err, auth.ErrAuthFailure) {
		return NoticeNoData
	}
	return err.Error()
}

func countReported(races []models.RaceReport) int {
	n := 0
	for _, r := range races {
		if len(r.Results) > 0 {
			n++
		}
	}
	return n
}
