package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"StockScreener/internal/config"
	"StockScreener/internal/logger"
	"StockScreener/internal/notifier"
	"StockScreener/internal/scanner"
	"StockScreener/internal/strategy"
	"StockScreener/internal/universe"
)

// Sender delivers a formatted report.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs configured screens on cron schedules and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Scanner  *scanner.Scanner
	Universe universe.Provider
	Notifier Sender
	Calendar *TradingCalendar
	// Lookback is the minimum number of candles fetched per symbol.
	Lookback int
	Ctx      context.Context
	// Now is the clock used for the trading-day gate.
	Now func() time.Time

	mu   sync.Mutex
	jobs map[string]config.Job
	log  *logrus.Entry
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, sc *scanner.Scanner, uni universe.Provider, sender Sender, cal *TradingCalendar, lookback int) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Scanner:  sc,
		Universe: uni,
		Notifier: sender,
		Calendar: cal,
		Lookback: lookback,
		Ctx:      ctx,
		Now:      time.Now,
		jobs:     make(map[string]config.Job),
		log:      logger.Component("scheduler"),
	}
}

// RegisterAll registers one cron entry per job.
func (s *Scheduler) RegisterAll(jobs []config.Job) error {
	for _, job := range jobs {
		job := job
		if _, err := strategy.Build(job.Screen, job.Params); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
		if _, err := s.Cron.AddFunc(job.Cron, func() { s.scheduled(job) }); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name, err)
		}
		s.mu.Lock()
		s.jobs[job.Name] = job
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{"job": job.Name, "cron": job.Cron, "screen": job.Screen}).Info("job registered")
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// JobNames lists registered jobs in name order.
func (s *Scheduler) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJobNow runs a registered job immediately, ignoring the trading calendar.
func (s *Scheduler) RunJobNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.runJob(job)
}

// RunAllNow runs every registered job once.
func (s *Scheduler) RunAllNow() {
	for _, name := range s.JobNames() {
		if err := s.RunJobNow(name); err != nil {
			s.log.WithError(err).WithField("job", name).Error("job failed")
		}
	}
}

func (s *Scheduler) scheduled(job config.Job) {
	if !s.Calendar.IsTradingDay(s.Now()) {
		s.log.WithField("job", job.Name).Info("market closed, skipping")
		return
	}
	if err := s.runJob(job); err != nil {
		s.log.WithError(err).WithField("job", job.Name).Error("job failed")
		s.trySend(fmt.Sprintf("❌ %s failed: %v", job.Name, err))
	}
}

func (s *Scheduler) runJob(job config.Job) error {
	screen, err := strategy.Build(job.Screen, job.Params)
	if err != nil {
		return err
	}
	entries, err := s.Universe.List(s.Ctx, job.Cap)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"job": job.Name, "screen": job.Screen, "universe": len(entries)})
	log.Info("running job")

	results, report, err := s.Scanner.Scan(s.Ctx, screen.Request(entries, s.Lookback))
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	results = screen.Finish(results)

	title := fmt.Sprintf("%s (%s)", job.Name, job.Screen)
	s.trySend(notifier.FormatScanReport(title, results, report))
	if failures := notifier.FormatFailures(report); failures != "" {
		s.trySend(failures)
	}
	log.WithField("matched", len(results)).Info("job done")
	return nil
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "/jobs":
		names := s.JobNames()
		if len(names) == 0 {
			return "No jobs configured."
		}
		return "Jobs:\n• " + strings.Join(names, "\n• ")
	case "/screens":
		return "Screens:\n• " + strings.Join(strategy.Names(), "\n• ")
	case "/scan":
		if len(fields) < 2 {
			return "Usage: /scan <job>"
		}
		go func(name string) {
			if err := s.RunJobNow(name); err != nil {
				s.log.WithError(err).WithField("job", name).Error("manual run failed")
				s.trySend(fmt.Sprintf("❌ %s: %v", name, err))
			}
		}(fields[1])
		return fmt.Sprintf("Running %s…", fields[1])
	default:
		return "Commands:\n• /jobs\n• /screens\n• /scan <job>"
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		s.log.WithError(err).Error("send notification")
	}
}
