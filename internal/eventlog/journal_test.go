package eventlog

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/persistence"
)

type memoryEvents struct {
	entries []persistence.LogEntry
	err     error
}

func (m *memoryEvents) LogEvent(_ context.Context, level domain.LogLevel, message string) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, persistence.LogEntry{Level: string(level), Message: message})
	return nil
}

func (m *memoryEvents) ListLogs(context.Context, int, string) ([]persistence.LogEntry, error) {
	return m.entries, nil
}

type capture struct{ got []persistence.LogEntry }

func (c *capture) Publish(e persistence.LogEntry) { c.got = append(c.got, e) }

func TestRecordPersistsMirrorsAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	repo := &memoryEvents{}
	j := NewJournal(repo, zerolog.New(&buf), func() string { return "2026-03-04 15:30:00" })
	sub := &capture{}
	j.Subscribe(sub)

	require.NoError(t, j.Recordf(context.Background(), domain.LevelRiskReject, "Daily turnover limit: %s", "exceeded"))

	require.Len(t, repo.entries, 1)
	assert.Equal(t, "RISK_REJECT", repo.entries[0].Level)
	assert.Equal(t, "Daily turnover limit: exceeded", repo.entries[0].Message)

	require.Len(t, sub.got, 1)
	assert.Equal(t, "2026-03-04 15:30:00", sub.got[0].Timestamp)

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"event":"RISK_REJECT"`)
}

func TestRecordCriticalIsFlagged(t *testing.T) {
	var buf bytes.Buffer
	j := NewJournal(&memoryEvents{}, zerolog.New(&buf), nil)

	require.NoError(t, j.Record(context.Background(), domain.LevelCritical, "universe empty"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"critical":true`)
}

func TestRecordLedgerFailure(t *testing.T) {
	var buf bytes.Buffer
	sub := &capture{}
	j := NewJournal(&memoryEvents{err: errors.New("disk full")}, zerolog.New(&buf), nil)
	j.Subscribe(sub)

	err := j.Record(context.Background(), domain.LevelInfo, "hello")
	assert.Error(t, err)
	assert.Empty(t, sub.got)
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "Failed to persist event")
}
