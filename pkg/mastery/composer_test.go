package mastery_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterylab/mastery/pkg/mastery"
	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
)

// countingResolver records how often it ran and in what order across a
// shared sequence.
type countingResolver struct {
	resolver.Func
	calls int32
}

func newCounting(name string, order *[]string, fail bool) *countingResolver {
	c := &countingResolver{}
	c.Func = *resolver.NewFunc(name, "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		atomic.AddInt32(&c.calls, 1)
		if order != nil {
			*order = append(*order, name)
		}
		if fail {
			return nil, models.NewTaskError(task, models.ErrTypeInternalError, name+" failed", nil)
		}
		return map[string]interface{}{"last": name}, nil
	})
	return c
}

func TestComposerFailFastConstruction(t *testing.T) {
	ok := newCounting("ok", nil, false)

	t.Run("MissingEntryNode", func(t *testing.T) {
		_, err := mastery.NewComposer("m", "1.0.0",
			[]*mastery.Node{mastery.NewNode("a", ok)}, "missing", []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry node 'missing' not found")
	})

	t.Run("MissingExitNode", func(t *testing.T) {
		_, err := mastery.NewComposer("m", "1.0.0",
			[]*mastery.Node{mastery.NewNode("a", ok)}, "a", []string{"missing"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit node 'missing' not found")
	})

	t.Run("DanglingNextReference", func(t *testing.T) {
		_, err := mastery.NewComposer("m", "1.0.0",
			[]*mastery.Node{mastery.NewNode("a", ok, "ghost")}, "a", []string{"a"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "references unknown node 'ghost'")
	})

	t.Run("NodeWithoutResolver", func(t *testing.T) {
		_, err := mastery.NewComposer("m", "1.0.0",
			[]*mastery.Node{{ID: "a"}}, "a", []string{"a"})
		require.Error(t, err)
	})
}

func TestLinearMasteryEndToEnd(t *testing.T) {
	var order []string
	r1 := newCounting("r1", &order, false)
	r2 := newCounting("r2", &order, false)
	r3 := newCounting("r3", &order, false)

	c, err := mastery.Linear("pipeline", "1.0.0", []resolver.Resolver{r1, r2, r3})
	require.NoError(t, err)

	task := models.NewTask("job", "", map[string]interface{}{"seed": 1})
	result := c.Execute(context.Background(), task, nil)

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, "r3", result.OutputData["last"])
	assert.Equal(t, []string{"r1", "r2", "r3"}, order)
	assert.Equal(t, int32(1), r1.calls)
	assert.Equal(t, int32(1), r2.calls)
	assert.Equal(t, int32(1), r3.calls)
	assert.Equal(t, task.ID, result.TaskID)
}

func TestLinearMasteryStopsOnFailure(t *testing.T) {
	var order []string
	r1 := newCounting("r1", &order, false)
	r2 := newCounting("r2", &order, true)
	r3 := newCounting("r3", &order, false)

	c, err := mastery.Linear("pipeline", "1.0.0", []resolver.Resolver{r1, r2, r3})
	require.NoError(t, err)

	task := models.NewTask("job", "", nil)
	result := c.Execute(context.Background(), task, nil)

	assert.Equal(t, models.ErrorTaskStatus, result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "r2 failed")
	assert.Equal(t, []string{"r1", "r2"}, order)
	assert.Equal(t, int32(0), r3.calls)
}

func TestLinearRequiresResolvers(t *testing.T) {
	_, err := mastery.Linear("empty", "1.0.0", nil)
	assert.Error(t, err)
}

func TestDepthGuard(t *testing.T) {
	// a <-> b never reaches the declared exit; traversal must stop with
	// a depth error after exactly maxDepth invocations.
	looper := newCounting("looper", nil, false)
	nodes := []*mastery.Node{
		mastery.NewNode("a", looper, "b"),
		mastery.NewNode("b", looper, "a"),
		mastery.NewNode("end", newCounting("end", nil, false)),
	}
	c, err := mastery.NewComposer("cycle", "1.0.0", nodes, "a", []string{"end"}, mastery.WithMaxDepth(4))
	require.NoError(t, err)

	task := models.NewTask("job", "", nil)
	result := c.Execute(context.Background(), task, nil)

	assert.Equal(t, models.ErrorTaskStatus, result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "maximum depth 4 exceeded")
	assert.Equal(t, int32(4), looper.calls)
}

func TestSingleSuccessorAdvance(t *testing.T) {
	// A non-exit node with several declared successors advances to the
	// first only.
	var order []string
	start := newCounting("start", &order, false)
	first := newCounting("first", &order, false)
	second := newCounting("second", &order, false)

	nodes := []*mastery.Node{
		mastery.NewNode("start", start, "first", "second"),
		mastery.NewNode("first", first),
		mastery.NewNode("second", second),
	}
	c, err := mastery.NewComposer("fanless", "1.0.0", nodes, "start", []string{"first", "second"})
	require.NoError(t, err)

	result := c.Execute(context.Background(), models.NewTask("job", "", nil), nil)

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, []string{"start", "first"}, order)
	assert.Equal(t, int32(0), second.calls)
}

func TestNodeConditionStopsTraversal(t *testing.T) {
	var order []string
	gate := newCounting("gate", &order, false)
	after := newCounting("after", &order, false)

	nodes := []*mastery.Node{
		mastery.NewNode("gate", gate, "after").WithCondition(func(result *models.TaskResult) bool {
			return false
		}),
		mastery.NewNode("after", after),
	}
	c, err := mastery.NewComposer("gated", "1.0.0", nodes, "gate", []string{"after"})
	require.NoError(t, err)

	result := c.Execute(context.Background(), models.NewTask("job", "", nil), nil)

	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, []string{"gate"}, order)
	assert.Equal(t, int32(0), after.calls)
}

func TestConditionalMastery(t *testing.T) {
	decide := func(value string) resolver.Resolver {
		return resolver.NewFunc("decide", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
			return value, nil
		})
	}
	branchA := newCounting("branch_a", nil, false)
	branchB := newCounting("branch_b", nil, false)
	fallback := newCounting("fallback", nil, false)
	branches := map[string]resolver.Resolver{
		"path_a": branchA,
		"path_b": branchB,
	}

	t.Run("MappedBranch", func(t *testing.T) {
		c, err := mastery.Conditional("router", "1.0.0", decide("path_a"), branches, fallback)
		require.NoError(t, err)
		result := c.Execute(context.Background(), models.NewTask("job", "", nil), nil)
		assert.Equal(t, models.CompletedTaskStatus, result.Status)
		assert.Equal(t, "branch_a", result.OutputData["last"])
		assert.Equal(t, int32(1), branchA.calls)
		assert.Equal(t, int32(0), branchB.calls)
	})

	t.Run("DefaultBranch", func(t *testing.T) {
		c, err := mastery.Conditional("router", "1.0.0", decide("path_z"), branches, fallback)
		require.NoError(t, err)
		result := c.Execute(context.Background(), models.NewTask("job", "", nil), nil)
		assert.Equal(t, models.CompletedTaskStatus, result.Status)
		assert.Equal(t, "fallback", result.OutputData["last"])
		assert.Equal(t, int32(1), fallback.calls)
	})

	t.Run("NoDefaultNoMatch", func(t *testing.T) {
		c, err := mastery.Conditional("router", "1.0.0", decide("path_z"), branches, nil)
		require.NoError(t, err)
		result := c.Execute(context.Background(), models.NewTask("job", "", nil), nil)
		assert.Equal(t, models.ErrorTaskStatus, result.Status)
		require.NotNil(t, result.Error)
		assert.Equal(t, models.ErrTypeInvalidInput, result.Error.ErrorType)
	})

	t.Run("NeedsBranchesOrDefault", func(t *testing.T) {
		_, err := mastery.Conditional("router", "1.0.0", decide("x"), nil, nil)
		assert.Error(t, err)
	})
}

func TestExecutionStateBookkeeping(t *testing.T) {
	r1 := newCounting("r1", nil, false)
	r2 := newCounting("r2", nil, false)
	c, err := mastery.Linear("tracked", "1.0.0", []resolver.Resolver{r1, r2})
	require.NoError(t, err)

	task := models.NewTask("job", "", nil)
	state := models.NewExecutionState("tracked", "1.0.0", task.ID)
	result := c.Execute(context.Background(), task, state)

	assert.Equal(t, []string{"node_0", "node_1"}, state.ExecutionPath)
	require.Contains(t, state.NodeResults, "node_0")
	require.Contains(t, state.NodeResults, "node_1")
	assert.Equal(t, result, state.NodeResults["node_1"])
	assert.False(t, state.Completed())

	state.Complete(result)
	assert.True(t, state.Completed())
	assert.Equal(t, models.CompletedTaskStatus, state.Status)
	require.NotNil(t, state.EndTime)

	// Frozen after Complete.
	state.RecordNode("node_2", result)
	assert.Len(t, state.ExecutionPath, 2)
}

func TestDefinitionRoundTrip(t *testing.T) {
	r1 := newCounting("fetch", nil, false)
	r2 := newCounting("store", nil, false)
	original, err := mastery.Linear("ingest", "1.1.0", []resolver.Resolver{r1, r2},
		mastery.WithMaxDepth(7), mastery.WithTags("etl"), mastery.WithDescription("ingestion pipeline"))
	require.NoError(t, err)

	def := original.Definition()
	assert.Equal(t, "ingest", def.Name)
	assert.Equal(t, "1.1.0", def.Version)
	assert.Equal(t, "node_0", def.EntryNode)
	assert.Equal(t, []string{"node_1"}, def.ExitNodes)
	assert.Equal(t, 7, def.MaxDepth)
	assert.Equal(t, []string{"etl"}, def.Tags)

	rebuilt, err := mastery.FromDefinition(def, map[string]resolver.Resolver{
		"fetch": r1,
		"store": r2,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, rebuilt.MaxDepth())

	result := rebuilt.Execute(context.Background(), models.NewTask("job", "", nil), nil)
	assert.Equal(t, models.CompletedTaskStatus, result.Status)
	assert.Equal(t, "store", result.OutputData["last"])

	t.Run("UnboundResolver", func(t *testing.T) {
		_, err := mastery.FromDefinition(def, map[string]resolver.Resolver{"fetch": r1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no resolver bound for 'store'")
	})
}

func TestComposerHealthCheck(t *testing.T) {
	healthy := newCounting("healthy", nil, false)
	sick := resolver.NewFunc("sick", "1.0.0", func(ctx context.Context, task *models.Task) (interface{}, error) {
		return nil, fmt.Errorf("out of order")
	})

	c, err := mastery.Linear("mixed", "1.0.0", []resolver.Resolver{healthy, sick})
	require.NoError(t, err)
	assert.False(t, c.HealthCheck(context.Background()))

	c2, err := mastery.Linear("fine", "1.0.0", []resolver.Resolver{healthy})
	require.NoError(t, err)
	assert.True(t, c2.HealthCheck(context.Background()))
}
