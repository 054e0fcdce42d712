package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demml/potatohead-go/agent"
	"github.com/demml/potatohead-go/prompt"
)

func newTask(t *testing.T, id string, deps ...string) *agent.Task {
	t.Helper()
	p, err := prompt.NewFromText(prompt.ProviderOpenAI, "gpt-4o", "task "+id)
	require.NoError(t, err)
	return agent.NewTask("a1", p, agent.WithTaskID(id), agent.WithDependencies(deps...))
}

func TestAddTaskValidation(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "t1")))

	var existsErr *TaskAlreadyExistsError
	assert.ErrorAs(t, l.AddTask(newTask(t, "t1")), &existsErr)

	var selfErr *TaskDependsOnItselfError
	assert.ErrorAs(t, l.AddTask(newTask(t, "t2", "t2")), &selfErr)

	var depErr *DependencyNotFoundError
	err := l.AddTask(newTask(t, "t3", "missing"))
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "t3", depErr.TaskID)
	assert.Equal(t, "missing", depErr.Dependency)

	assert.Equal(t, 1, l.Len())
}

func TestExecutionOrderDependenciesFirst(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "a")))
	require.NoError(t, l.AddTask(newTask(t, "b", "a")))
	require.NoError(t, l.AddTask(newTask(t, "c", "a")))
	require.NoError(t, l.AddTask(newTask(t, "d", "b", "c")))

	order := l.ExecutionOrder()
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestGetReadyTasks(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "a")))
	require.NoError(t, l.AddTask(newTask(t, "b", "a")))

	ready := l.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0].ID())

	a, _ := l.Get("a")
	a.Complete(nil)
	ready = l.GetReadyTasks()
	require.Len(t, ready, 1)
	assert.Equal(t, "b", ready[0].ID())
}

func TestResetFailedTasks(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "a")))

	a, _ := l.Get("a")
	a.Fail()
	require.NoError(t, l.ResetFailedTasks())
	assert.Equal(t, agent.StatusPending, a.Status())
	assert.Equal(t, 1, a.RetryCount())
}

func TestResetFailedTasksExceeded(t *testing.T) {
	l := NewTaskList()
	p, err := prompt.NewFromText(prompt.ProviderOpenAI, "gpt-4o", "x")
	require.NoError(t, err)
	task := agent.NewTask("a1", p, agent.WithTaskID("a"), agent.WithMaxRetries(0))
	require.NoError(t, l.AddTask(task))

	task.Fail()
	err = l.ResetFailedTasks()
	var mrErr *MaxRetriesExceededError
	require.ErrorAs(t, err, &mrErr)
	assert.Equal(t, "a", mrErr.TaskID)
	assert.Equal(t, agent.StatusFailed, task.Status())
}

func TestExecutionPlanLevels(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "a")))
	require.NoError(t, l.AddTask(newTask(t, "b")))
	require.NoError(t, l.AddTask(newTask(t, "c", "a", "b")))

	plan := l.ExecutionPlan()
	require.Len(t, plan, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, plan[0])
	assert.Equal(t, []string{"c"}, plan[1])
}

func TestTaskListCloneIsDeep(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "a")))

	clone := l.Clone()
	ca, _ := clone.Get("a")
	ca.Fail()

	oa, _ := l.Get("a")
	assert.Equal(t, agent.StatusPending, oa.Status())
	assert.Equal(t, agent.StatusFailed, ca.Status())
}

func TestAllCompletedAndPendingCount(t *testing.T) {
	l := NewTaskList()
	require.NoError(t, l.AddTask(newTask(t, "a")))
	require.NoError(t, l.AddTask(newTask(t, "b")))

	assert.False(t, l.AllCompleted())
	assert.Equal(t, 2, l.PendingCount())

	a, _ := l.Get("a")
	b, _ := l.Get("b")
	a.Complete(nil)
	b.Complete(nil)
	assert.True(t, l.AllCompleted())
	assert.Zero(t, l.PendingCount())
}
