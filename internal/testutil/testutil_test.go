package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/simkernel/internal/engine"
)

var _ engine.RunIDGenerator = (*FixedRunIDGenerator)(nil)

func TestEventRecorder_RecordsDailyOrder(t *testing.T) {
	c := engine.NewClock()
	r := NewEventRecorder()
	require.NoError(t, r.Attach(c, engine.DailyEvents...))

	start := time.Date(2000, 6, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Run(context.Background(), start, start.AddDate(0, 0, 1)))

	assert.Equal(t, []string{
		"2000-06-10 Tick", "2000-06-10 StartOfDay", "2000-06-10 MiddleOfDay", "2000-06-10 EndOfDay",
		"2000-06-11 Tick", "2000-06-11 StartOfDay", "2000-06-11 MiddleOfDay", "2000-06-11 EndOfDay",
	}, r.Entries())
	assert.Equal(t, 2, r.Count(engine.Tick))

	r.Reset()
	assert.Empty(t, r.Entries())
}

func TestEventRecorder_AttachAll(t *testing.T) {
	c := engine.NewClock()
	r := NewEventRecorder()
	require.NoError(t, r.Attach(c))

	day := time.Date(2000, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Run(context.Background(), day, day))

	assert.Equal(t, 1, r.Count(engine.StartOfSimulation))
	assert.Equal(t, 1, r.Count(engine.EndOfMonth))
	assert.Zero(t, r.Count(engine.StartOfMonth))
	assert.Equal(t, 1, r.Count(engine.EndOfSimulation))
}

func TestFixedRunIDGenerator(t *testing.T) {
	g := NewFixedRunIDGenerator("run-1")
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "run-1", g.Generate())
	assert.Equal(t, "test-run-default", NewFixedRunIDGenerator("").Generate())
}
