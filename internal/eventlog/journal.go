package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/persistence"
)

// Subscriber receives every recorded event, e.g. the dashboard live feed
type Subscriber interface {
	Publish(entry persistence.LogEntry)
}

// Journal writes events to the ledger log table and mirrors them to the process logger
type Journal struct {
	repo   persistence.EventsRepo
	logger zerolog.Logger
	stamp  func() string

	mu   sync.RWMutex
	subs []Subscriber
}

// NewJournal creates a journal; stamp formats the event time for subscribers
func NewJournal(repo persistence.EventsRepo, logger zerolog.Logger, stamp func() string) *Journal {
	return &Journal{repo: repo, logger: logger, stamp: stamp}
}

// Subscribe adds a live subscriber
func (j *Journal) Subscribe(s Subscriber) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subs = append(j.subs, s)
}

// Record appends one event. The process log line is written even if the ledger write fails.
func (j *Journal) Record(ctx context.Context, level domain.LogLevel, message string) error {
	j.mirror(level, message)

	if err := j.repo.LogEvent(ctx, level, message); err != nil {
		j.logger.Error().Err(err).Str("level", string(level)).Msg("Failed to persist event")
		return fmt.Errorf("record %s event: %w", level, err)
	}

	entry := persistence.LogEntry{Level: string(level), Message: message}
	if j.stamp != nil {
		entry.Timestamp = j.stamp()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, s := range j.subs {
		s.Publish(entry)
	}
	return nil
}

// Recordf formats and records an event
func (j *Journal) Recordf(ctx context.Context, level domain.LogLevel, format string, args ...interface{}) error {
	return j.Record(ctx, level, fmt.Sprintf(format, args...))
}

func (j *Journal) mirror(level domain.LogLevel, message string) {
	var ev *zerolog.Event
	switch level {
	case domain.LevelRiskReject:
		ev = j.logger.Warn()
	case domain.LevelError:
		ev = j.logger.Error()
	case domain.LevelCritical:
		ev = j.logger.Error().Bool("critical", true)
	default:
		ev = j.logger.Info()
	}
	ev.Str("event", string(level)).Msg(message)
}
