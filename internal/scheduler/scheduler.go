// Package scheduler refreshes the default value bet query on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/racing-value/internal/clock"
	"github.com/yourusername/racing-value/internal/datasource"
	"github.com/yourusername/racing-value/internal/logger"
	"github.com/yourusername/racing-value/internal/models"
	"github.com/yourusername/racing-value/internal/service"
)

// Runner executes one value bet run
type Runner interface {
	Run(ctx context.Context, q datasource.RaceQuery) (*service.RunReport, error)
}

// Scheduler manages the periodic refresh job and keeps the latest report
type Scheduler struct {
	cron            *cron.Cron
	runner          Runner
	clock           clock.Clock
	logger          *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	runTimeout      time.Duration
	gracefulTimeout time.Duration

	latest    *service.RunReport
	latestErr error
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, clk clock.Clock, log *logrus.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		runner:          runner,
		clock:           clk,
		logger:          logger.Component(log, "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		runTimeout:      2 * time.Minute,
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleRefresh schedules a run of today's races for country and raceType
func (s *Scheduler) ScheduleRefresh(cronExpression, country string, raceType models.RaceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()

		if _, err := s.RefreshNow(ctx, s.Today(country, raceType)); err != nil {
			s.logger.WithError(err).Error("Scheduled refresh failed")
		}
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("cron", cronExpression).Info("Scheduled value bet refresh")

	return nil
}

// Today returns the query for the current UTC day
func (s *Scheduler) Today(country string, raceType models.RaceType) datasource.RaceQuery {
	now := s.clock.Now().UTC()
	return datasource.RaceQuery{
		Date:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Country:  country,
		RaceType: raceType,
	}
}

// RefreshNow runs q immediately and stores the outcome as the latest report
func (s *Scheduler) RefreshNow(ctx context.Context, q datasource.RaceQuery) (*service.RunReport, error) {
	report, err := s.runner.Run(ctx, q)

	s.mu.Lock()
	if report != nil {
		s.latest = report
	}
	s.latestErr = err
	s.mu.Unlock()

	if err == nil && report != nil {
		s.logger.WithFields(logrus.Fields{
			"run_id":     report.RunID,
			"races":      len(report.Races),
			"value_bets": report.ValueBets,
		}).Info("Value bets refreshed")
	}
	return report, err
}

// Latest returns the most recent report and the error of the most recent run
func (s *Scheduler) Latest() (*service.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latestErr
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop waits for a running job to finish, up to the graceful timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(s.gracefulTimeout):
		s.logger.Warn("Scheduler stop timed out waiting for running job")
	}
	s.logger.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
