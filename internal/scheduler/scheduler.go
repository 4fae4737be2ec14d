package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Job types
const (
	JobRebalance = "rebalance.run"
	JobArchive   = "ledger.archive"
)

const historySize = 50

// Job represents a scheduled job configuration
type Job struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`  // "rebalance.run", "ledger.archive"
	Every       time.Duration `yaml:"every"` // e.g. 1h
	Description string        `yaml:"description"`
	Enabled     bool          `yaml:"enabled"`
	RunOnStart  bool          `yaml:"run_on_start"`
}

// Config holds the scheduler configuration
type Config struct {
	Tick time.Duration `yaml:"tick"`
	Jobs []Job         `yaml:"jobs"`
}

// DefaultConfig runs the rebalance cycle hourly; the archive job ships disabled
func DefaultConfig() Config {
	return Config{
		Tick: time.Minute,
		Jobs: []Job{
			{
				Name:        "hourly-rebalance",
				Type:        JobRebalance,
				Every:       time.Hour,
				Description: "Duration-targeted rebalance cycle",
				Enabled:     true,
				RunOnStart:  true,
			},
			{
				Name:        "eod-archive",
				Type:        JobArchive,
				Every:       24 * time.Hour,
				Description: "Archive the previous day's trade blotter",
			},
		},
	}
}

// LoadConfig reads a standalone scheduler file
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Runner executes one job and returns the artifacts it produced
type Runner func(ctx context.Context) ([]string, error)

// Status represents scheduler status
type Status struct {
	Running      bool          `json:"running" yaml:"running"`
	EnabledJobs  int           `json:"enabled_jobs" yaml:"enabled_jobs"`
	DisabledJobs int           `json:"disabled_jobs" yaml:"disabled_jobs"`
	NextRun      time.Time     `json:"next_run" yaml:"next_run"`
	LastRun      time.Time     `json:"last_run" yaml:"last_run"`
	Uptime       time.Duration `json:"uptime" yaml:"uptime"`
}

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name" yaml:"job_name"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time" yaml:"end_time"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Success   bool          `json:"success" yaml:"success"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
	Artifacts []string      `json:"artifacts" yaml:"artifacts"`
}

// Scheduler runs jobs one at a time, so two rebalance cycles never overlap
type Scheduler struct {
	mu        sync.Mutex
	config    Config
	runners   map[string]Runner
	startTime time.Time
	running   bool
	next      map[string]time.Time
	last      time.Time
	history   []JobResult
	now       func() time.Time
}

// New creates a scheduler; every enabled job needs a runner for its type
func New(cfg Config, runners map[string]Runner) (*Scheduler, error) {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Minute
	}
	seen := make(map[string]bool)
	for _, job := range cfg.Jobs {
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name: %s", job.Name)
		}
		seen[job.Name] = true
		if !job.Enabled {
			continue
		}
		if _, ok := runners[job.Type]; !ok {
			return nil, fmt.Errorf("job %s: unknown type %q", job.Name, job.Type)
		}
		if job.Every <= 0 {
			return nil, fmt.Errorf("job %s: every must be positive", job.Name)
		}
	}
	return &Scheduler{
		config:  cfg,
		runners: runners,
		next:    make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

// ListJobs returns all configured jobs
func (s *Scheduler) ListJobs() []Job {
	return s.config.Jobs
}

// GetStatus returns current scheduler status
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, LastRun: s.last}
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			st.DisabledJobs++
			continue
		}
		st.EnabledJobs++
		if n, ok := s.next[job.Name]; ok && (st.NextRun.IsZero() || n.Before(st.NextRun)) {
			st.NextRun = n
		}
	}
	if s.running {
		st.Uptime = s.now().Sub(s.startTime)
	}
	return st
}

// History returns recent job results, oldest first
func (s *Scheduler) History() []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobResult, len(s.history))
	copy(out, s.history)
	return out
}

// Start begins the scheduler loop and blocks until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = s.now()
	for _, job := range s.config.Jobs {
		if !job.Enabled {
			continue
		}
		if job.RunOnStart {
			s.next[job.Name] = s.startTime
		} else {
			s.next[job.Name] = s.startTime.Add(job.Every)
		}
	}
	s.mu.Unlock()

	log.Info().Int("jobs", len(s.config.Jobs)).Dur("tick", s.config.Tick).Msg("Scheduler starting")

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	s.checkAndRunJobs(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			log.Info().Msg("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.checkAndRunJobs(ctx)
		}
	}
}

// checkAndRunJobs runs every enabled job that is due
func (s *Scheduler) checkAndRunJobs(ctx context.Context) {
	for _, job := range s.config.Jobs {
		if !job.Enabled || ctx.Err() != nil {
			continue
		}
		now := s.now()
		s.mu.Lock()
		due := !now.Before(s.next[job.Name])
		if due {
			s.next[job.Name] = now.Add(job.Every)
		}
		s.mu.Unlock()
		if !due {
			continue
		}
		if _, err := s.RunJob(ctx, job.Name); err != nil {
			log.Error().Err(err).Str("job", job.Name).Msg("Scheduled job failed")
		}
	}
}

// RunJob executes a specific job immediately, enabled or not
func (s *Scheduler) RunJob(ctx context.Context, jobName string) (*JobResult, error) {
	var job *Job
	for i, j := range s.config.Jobs {
		if j.Name == jobName {
			job = &s.config.Jobs[i]
			break
		}
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", jobName)
	}
	run, ok := s.runners[job.Type]
	if !ok {
		return nil, fmt.Errorf("job %s: unknown type %q", job.Name, job.Type)
	}

	result := &JobResult{JobName: jobName, StartTime: s.now(), Success: true, Artifacts: []string{}}
	log.Info().Str("job", jobName).Str("type", job.Type).Msg("Executing job")

	artifacts, err := run(ctx)
	result.EndTime = s.now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else if artifacts != nil {
		result.Artifacts = artifacts
	}

	s.mu.Lock()
	s.last = result.StartTime
	s.history = append(s.history, *result)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.mu.Unlock()

	log.Info().Str("job", jobName).Bool("success", result.Success).Dur("duration", result.Duration).Msg("Job completed")
	if err != nil {
		return result, fmt.Errorf("job %s: %w", jobName, err)
	}
	return result, nil
}
