package task_test

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/task"
)

func TestDerive_Deterministic(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	a := task.Derive("Moscow", date)
	b := task.Derive("Moscow", date)
	assert.Equal(t, a, b)
}

func TestDerive_MatchesDigestPrefix(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	sum := sha256.Sum256([]byte("Moscow:2024-01-15"))

	id := task.Derive("Moscow", date)
	assert.Equal(t, sum[:16], id[:])
	assert.Equal(t, "Moscow:2024-01-15", task.Canonical("Moscow", date))
}

func TestDerive_Distinct(t *testing.T) {
	d1 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	seen := make(map[task.ID]string)
	for _, e := range location.All() {
		for _, d := range []time.Time{d1, d2} {
			id := task.Derive(e.Location, d)
			key := task.Canonical(e.Location, d)
			if prev, ok := seen[id]; ok {
				t.Fatalf("collision between %s and %s", prev, key)
			}
			seen[id] = key
		}
	}
	assert.Len(t, seen, 22)
}

func TestDerive_IgnoresTimeOfDay(t *testing.T) {
	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 1, 21, 45, 0, 0, time.UTC)

	assert.Equal(t, task.Derive("Paris", midnight), task.Derive("Paris", evening))
}

func TestParseDate(t *testing.T) {
	d, err := task.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = task.ParseDate("2023-02-29")
	assert.Error(t, err)

	_, err = task.ParseDate("15/01/2024")
	assert.Error(t, err)
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 6, 10, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), task.Day(in))
}

func TestParseID_RoundTrip(t *testing.T) {
	id := task.Derive("Paris", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	parsed, err := task.ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = task.ParseID("not-a-task")
	assert.Error(t, err)
}
