// Package logger provides value bet pipeline logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// PipelineLogger provides dedicated logging for value bet runs.
type PipelineLogger struct {
	*logrus.Entry
}

// NewPipelineLogger creates a new pipeline logger.
func NewPipelineLogger(baseLogger *logrus.Logger) *PipelineLogger {
	return &PipelineLogger{
		Entry: Component(baseLogger, "pipeline"),
	}
}

// WithRun returns a copy scoped to one run.
func (pl *PipelineLogger) WithRun(runID string) *PipelineLogger {
	return &PipelineLogger{Entry: pl.WithField("run_id", runID)}
}

// LogRunStarted logs the start of a value bet run.
func (pl *PipelineLogger) LogRunStarted(date, country, raceType string, maxRaces int) {
	pl.WithFields(logrus.Fields{
		"date":      date,
		"country":   country,
		"race_type": raceType,
		"max_races": maxRaces,
	}).Info("Value bet run started")
}

// LogRaceSkipped logs a race that produced no results.
func (pl *PipelineLogger) LogRaceSkipped(raceID, track, reason string, err error) {
	entry := pl.WithFields(logrus.Fields{
		"race_id": raceID,
		"track":   track,
		"reason":  reason,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Race skipped")
}

// LogRaceEvaluated logs a completed race evaluation.
func (pl *PipelineLogger) LogRaceEvaluated(raceID, track string, runners, invalidRunners, valueBets int, overround, durationMs float64) {
	pl.WithFields(logrus.Fields{
		"race_id":                raceID,
		"track":                  track,
		"runners_evaluated":      runners,
		"invalid_runners":        invalidRunners,
		"value_bets":             valueBets,
		"overround":              overround,
		"evaluation_duration_ms": durationMs,
	}).Info("Race evaluation completed")
}

// LogValueBet logs a runner rated as value.
func (pl *PipelineLogger) LogValueBet(raceID, runner, betType string, odds, bestEV float64) {
	pl.WithFields(logrus.Fields{
		"race_id":  raceID,
		"runner":   runner,
		"bet_type": betType,
		"odds":     odds,
		"best_ev":  bestEV,
	}).Debug("Value bet found")
}

// LogRunCompleted logs the end of a value bet run.
func (pl *PipelineLogger) LogRunCompleted(racesListed, racesReported, valueBets int, durationMs float64) {
	pl.WithFields(logrus.Fields{
		"races_listed":    racesListed,
		"races_reported":  racesReported,
		"value_bets":      valueBets,
		"run_duration_ms": durationMs,
	}).Info("Value bet run completed")
}
