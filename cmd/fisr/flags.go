package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/persistence"
)

// dayValue is a YYYY-MM-DD flag resolved in the ledger timezone at use
type dayValue struct {
	raw string
}

var _ pflag.Value = (*dayValue)(nil)

func (d *dayValue) String() string { return d.raw }

func (d *dayValue) Set(s string) error {
	if _, err := time.Parse(persistence.DayLayout, s); err != nil {
		return fmt.Errorf("day must be YYYY-MM-DD, got %q", s)
	}
	d.raw = s
	return nil
}

func (d *dayValue) Type() string { return "day" }

// IsSet reports whether the flag was given
func (d *dayValue) IsSet() bool { return d.raw != "" }

// In returns the day at midnight in loc, or fallback when unset
func (d *dayValue) In(loc *time.Location, fallback time.Time) time.Time {
	if d.raw == "" {
		return fallback
	}
	t, err := time.ParseInLocation(persistence.DayLayout, d.raw, loc)
	if err != nil {
		return fallback
	}
	return t
}

// levelValue restricts --level to the event log levels
type levelValue struct {
	level string
}

var eventLevels = []domain.LogLevel{
	domain.LevelInfo,
	domain.LevelError,
	domain.LevelRiskReject,
	domain.LevelCritical,
	domain.LevelStrategyRun,
}

func (l *levelValue) String() string { return l.level }

func (l *levelValue) Set(s string) error {
	for _, lvl := range eventLevels {
		if s == string(lvl) {
			l.level = s
			return nil
		}
	}
	return fmt.Errorf("level must be one of %v", eventLevels)
}

func (l *levelValue) Type() string { return "level" }

// addDayFlag registers a --day flag on fs
func addDayFlag(fs *pflag.FlagSet, d *dayValue, usage string) {
	fs.Var(d, "day", usage)
}
