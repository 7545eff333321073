package mastery

import (
	"context"
	"fmt"
	"sort"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
	"github.com/pkg/errors"
)

// Linear chains resolvers into nodes node_0..node_{n-1} with
// single-successor edges: entry is the first node, exit the last.
func Linear(name, version string, resolvers []resolver.Resolver, opts ...ComposerOption) (*Composer, error) {
	if len(resolvers) == 0 {
		return nil, errors.Errorf("mastery '%s': linear build needs at least one resolver", name)
	}
	nodes := make([]*Node, len(resolvers))
	for i, res := range resolvers {
		id := fmt.Sprintf("node_%d", i)
		var next []string
		if i < len(resolvers)-1 {
			next = []string{fmt.Sprintf("node_%d", i+1)}
		}
		nodes[i] = NewNode(id, res, next...)
	}
	entry := "node_0"
	exit := fmt.Sprintf("node_%d", len(resolvers)-1)
	return NewComposer(name, version, nodes, entry, []string{exit}, opts...)
}

// Conditional wires a decision resolver's output through a value-to-
// resolver map, with an optional default when no key matches. The graph
// is two nodes: the decision node and a routing node whose resolver
// dispatches on the decision output; this is the only place the kernel
// fans out to more than one successor.
func Conditional(name, version string, decision resolver.Resolver, branches map[string]resolver.Resolver, defaultResolver resolver.Resolver, opts ...ComposerOption) (*Composer, error) {
	if decision == nil {
		return nil, errors.Errorf("mastery '%s': conditional build needs a decision resolver", name)
	}
	if len(branches) == 0 && defaultResolver == nil {
		return nil, errors.Errorf("mastery '%s': conditional build needs branches or a default", name)
	}
	router := newRouter(name, branches, defaultResolver)
	nodes := []*Node{
		NewNode("decision", decision, "route"),
		NewNode("route", router),
	}
	return NewComposer(name, version, nodes, "decision", []string{"route"}, opts...)
}

// router dispatches a task to the branch keyed by the decision output.
// The decision value is read from the task input under "decision" first,
// then "result" (where raw decision returns land).
type router struct {
	resolver.Base
	branches     map[string]resolver.Resolver
	defaultRes   resolver.Resolver
	branchValues []string
}

func newRouter(masteryName string, branches map[string]resolver.Resolver, defaultRes resolver.Resolver) *router {
	values := make([]string, 0, len(branches))
	for v := range branches {
		values = append(values, v)
	}
	sort.Strings(values)
	return &router{
		Base:         resolver.NewBase(masteryName+"_router", "1.0.0", "conditional branch router"),
		branches:     branches,
		defaultRes:   defaultRes,
		branchValues: values,
	}
}

func (r *router) decisionValue(task *models.Task) (string, bool) {
	for _, key := range []string{"decision", "result"} {
		if v, ok := task.InputData[key]; ok {
			return fmt.Sprintf("%v", v), true
		}
	}
	return "", false
}

func (r *router) Resolve(ctx context.Context, task *models.Task) (interface{}, error) {
	value, ok := r.decisionValue(task)
	if !ok {
		return nil, models.NewTaskError(task, models.ErrTypeMissingParameter,
			"no decision value in task input", map[string]interface{}{"expected_keys": []string{"decision", "result"}})
	}
	branch, ok := r.branches[value]
	if !ok {
		branch = r.defaultRes
	}
	if branch == nil {
		return nil, models.NewTaskError(task, models.ErrTypeInvalidInput,
			fmt.Sprintf("no branch for decision value '%s'", value),
			map[string]interface{}{"value": value, "branches": r.branchValues})
	}
	return resolver.Invoke(ctx, branch, task), nil
}

// HealthCheck aggregates branch health instead of probing Resolve, which
// would always miss a decision value.
func (r *router) HealthCheck(ctx context.Context) bool {
	for _, branch := range r.branches {
		if !branch.HealthCheck(ctx) {
			return false
		}
	}
	if r.defaultRes != nil {
		return r.defaultRes.HealthCheck(ctx)
	}
	return true
}
