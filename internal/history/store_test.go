package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndRecent(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []string{"published", "no-change", "partial"} {
		require.NoError(t, s.Append(ctx, Record{
			CycleID:   "cycle-" + outcome,
			Trigger:   "monitor",
			Outcome:   outcome,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Duration:  1500,
		}))
	}

	records, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "partial", records[0].Outcome, "most recent first")
	assert.Equal(t, "no-change", records[1].Outcome)
	assert.Equal(t, base.Add(2*time.Minute), records[0].StartedAt)
	assert.Equal(t, int64(1500), records[0].Duration)
}

func TestStore_RecentDefaultLimit(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	records, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_ConflictsRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, Record{
		CycleID:   "c1",
		Trigger:   "webhook",
		Outcome:   "partial",
		Detail:    "submodule-sync[redpen-content]=partial",
		Conflicts: JoinConflicts([]string{"posts/a.md", "posts/b.md"}),
		StartedAt: time.Now().UTC(),
	}))

	records, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "posts/a.md\nposts/b.md", records[0].Conflicts)
}

func TestJoinConflicts_Empty(t *testing.T) {
	assert.Equal(t, "", JoinConflicts(nil))
}
