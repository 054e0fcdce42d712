package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTrackerLifecycle(t *testing.T) {
	tracker := NewEventTracker("wf-1")

	tracker.RecordStarted("t1", "gpt-4o")
	events := tracker.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Status)
	assert.Equal(t, "wf-1", events[0].WorkflowID)
	assert.Equal(t, "gpt-4o", events[0].Details.Model)

	tracker.RecordCompleted("t1", "the answer")
	events = tracker.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Status)
	assert.Equal(t, "the answer", events[0].Details.Response)
	assert.False(t, events[0].UpdatedAt.Before(events[0].Timestamp))
}

func TestEventTrackerRetryReusesRecord(t *testing.T) {
	tracker := NewEventTracker("wf-1")

	tracker.RecordStarted("t1", "gpt-4o")
	firstID := tracker.Events()[0].ID
	tracker.RecordFailed("t1", "boom")

	// A retried attempt opens a fresh record under the same task id.
	tracker.RecordStarted("t1", "gpt-4o")
	tracker.RecordCompleted("t1", "fine now")

	events := tracker.Events()
	require.Len(t, events, 1)
	assert.NotEqual(t, firstID, events[0].ID)
	assert.Equal(t, EventCompleted, events[0].Status)
	assert.Empty(t, events[0].Details.Error)
}

func TestEventTrackerFailure(t *testing.T) {
	tracker := NewEventTracker("wf-1")
	tracker.RecordStarted("t1", "gpt-4o")
	tracker.RecordFailed("t1", "provider unreachable")

	events := tracker.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Status)
	assert.Equal(t, "provider unreachable", events[0].Details.Error)
}

func TestEventsSortedByStartTime(t *testing.T) {
	tracker := NewEventTracker("wf-1")
	tracker.RecordStarted("b", "m")
	tracker.RecordStarted("a", "m")
	tracker.RecordStarted("c", "m")

	events := tracker.Events()
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		ok := prev.Timestamp.Before(cur.Timestamp) ||
			(prev.Timestamp.Equal(cur.Timestamp) && prev.TaskID < cur.TaskID)
		assert.True(t, ok, "events out of order at %d", i)
	}
}

func TestEventTrackerReset(t *testing.T) {
	tracker := NewEventTracker("wf-1")
	tracker.RecordStarted("t1", "m")
	tracker.Reset()
	assert.Empty(t, tracker.Events())
}
