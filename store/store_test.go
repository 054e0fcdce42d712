package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demml/potatohead-go/workflow"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvents(workflowID string) []workflow.TaskEvent {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []workflow.TaskEvent{
		{
			ID:         "ev-1",
			WorkflowID: workflowID,
			TaskID:     "t1",
			Status:     workflow.EventCompleted,
			Timestamp:  base,
			UpdatedAt:  base.Add(2 * time.Second),
			Details:    workflow.EventDetails{Model: "gpt-4o", Response: "done", Duration: 2 * time.Second},
		},
		{
			ID:         "ev-2",
			WorkflowID: workflowID,
			TaskID:     "t2",
			Status:     workflow.EventFailed,
			Timestamp:  base.Add(3 * time.Second),
			UpdatedAt:  base.Add(4 * time.Second),
			Details:    workflow.EventDetails{Model: "gpt-4o", Error: "boom", Duration: time.Second},
		},
	}
}

func TestSaveAndLoadEvents(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveEvents(sampleEvents("wf-1")))

	events, err := s.EventsForWorkflow("wf-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "ev-1", events[0].ID)
	assert.Equal(t, workflow.EventCompleted, events[0].Status)
	assert.Equal(t, "done", events[0].Details.Response)
	assert.Equal(t, 2*time.Second, events[0].Details.Duration)

	assert.Equal(t, "ev-2", events[1].ID)
	assert.Equal(t, "boom", events[1].Details.Error)
}

func TestSaveEventsUpserts(t *testing.T) {
	s := openTestStore(t)
	events := sampleEvents("wf-1")
	require.NoError(t, s.SaveEvents(events))

	events[1].Status = workflow.EventCompleted
	events[1].Details.Error = ""
	events[1].Details.Response = "recovered"
	require.NoError(t, s.SaveEvents(events))

	loaded, err := s.EventsForWorkflow("wf-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, workflow.EventCompleted, loaded[1].Status)
	assert.Equal(t, "recovered", loaded[1].Details.Response)
	assert.Empty(t, loaded[1].Details.Error)
}

func TestEventsForWorkflowIsolation(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveEvents(sampleEvents("wf-1")))

	events, err := s.EventsForWorkflow("wf-other")
	require.NoError(t, err)
	assert.Empty(t, events)
}
