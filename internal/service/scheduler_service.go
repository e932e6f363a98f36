package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"salva/internal/config"
	"salva/internal/logger"
)

// SchedulerService wraps cron-based jobs.
type SchedulerService struct {
	cron    *cron.Cron
	log     *logger.Logger
	timeout time.Duration
}

func NewSchedulerService(loc *time.Location, jobTimeout time.Duration, log *logger.Logger) *SchedulerService {
	return &SchedulerService{
		cron:    cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		log:     log.With("service", "scheduler"),
		timeout: jobTimeout,
	}
}

// ScheduleDaily registers a named job at the given HH:MM time. Each run gets its own bounded context
// and overlapping runs are skipped.
func (s *SchedulerService) ScheduleDaily(name, timeStr string, job func(ctx context.Context) error) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.run(name, job)
	}))
	return s.cron.AddJob(spec, wrapped)
}

func (s *SchedulerService) run(name string, job func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", "job", name, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("job failed", "job", name, "error", err, "took", time.Since(started))
		return
	}
	s.log.Info("job finished", "job", name, "took", time.Since(started))
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered jobs.
func (s *SchedulerService) Entries() int {
	return len(s.cron.Entries())
}

func buildDailySpec(timeStr string) (string, error) {
	hour, minute, err := config.ParseClock(timeStr)
	if err != nil {
		return "", err
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
