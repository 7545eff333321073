package mastery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
	"github.com/pkg/errors"
)

// DefaultMaxDepth bounds graph traversal; it is the cycle and
// runaway-graph guard.
const DefaultMaxDepth = 10

// Composer is a directed graph of resolver nodes with a designated entry
// node and a set of exit nodes. It implements resolver.Resolver, so a
// mastery registers, composes and executes like any other resolver.
type Composer struct {
	meta      *models.ResolverMetadata
	nodes     map[string]*Node
	entry     string
	exits     map[string]struct{}
	maxDepth  int
	tags      []string
	params    map[string]interface{}
	createdAt time.Time
	updatedAt time.Time
	logger    resolver.Logger
}

// ComposerOption customizes a Composer at construction.
type ComposerOption func(*Composer)

func WithMaxDepth(depth int) ComposerOption {
	return func(c *Composer) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

func WithTags(tags ...string) ComposerOption {
	return func(c *Composer) { c.tags = append(c.tags, tags...) }
}

func WithParameters(params map[string]interface{}) ComposerOption {
	return func(c *Composer) { c.params = params }
}

func WithDescription(description string) ComposerOption {
	return func(c *Composer) { c.meta.Description = description }
}

func WithLogger(logger resolver.Logger) ComposerOption {
	return func(c *Composer) { c.logger = logger }
}

// NewComposer validates the graph eagerly and fails construction on a bad
// configuration: a missing entry node, a missing exit node, or a node
// whose next reference points nowhere. Configuration mistakes surface
// here, before any task flows.
func NewComposer(name, version string, nodes []*Node, entryNode string, exitNodes []string, opts ...ComposerOption) (*Composer, error) {
	c := &Composer{
		meta:      models.NewResolverMetadata(name, version, ""),
		nodes:     make(map[string]*Node, len(nodes)),
		entry:     entryNode,
		exits:     make(map[string]struct{}, len(exitNodes)),
		maxDepth:  DefaultMaxDepth,
		createdAt: time.Now(),
		updatedAt: time.Now(),
		logger:    noopLogger{},
	}
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return nil, errors.Errorf("mastery '%s': node without an id", name)
		}
		if n.Resolver == nil {
			return nil, errors.Errorf("mastery '%s': node '%s' has no resolver", name, n.ID)
		}
		c.nodes[n.ID] = n
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := c.nodes[entryNode]; !ok {
		return nil, errors.Errorf("mastery '%s': entry node '%s' not found", name, entryNode)
	}
	for _, exit := range exitNodes {
		if _, ok := c.nodes[exit]; !ok {
			return nil, errors.Errorf("mastery '%s': exit node '%s' not found", name, exit)
		}
		c.exits[exit] = struct{}{}
	}
	for _, n := range c.nodes {
		for _, next := range n.Next {
			if _, ok := c.nodes[next]; !ok {
				return nil, errors.Errorf("mastery '%s': node '%s' references unknown node '%s'", name, n.ID, next)
			}
		}
	}
	c.meta.Tags = append(c.meta.Tags, c.tags...)
	return c, nil
}

func (c *Composer) Metadata() *models.ResolverMetadata {
	return c.meta
}

// MaxDepth returns the traversal bound.
func (c *Composer) MaxDepth() int {
	return c.maxDepth
}

// CanHandle matches on the explicit resolver hint carried by the task.
func (c *Composer) CanHandle(task *models.Task) bool {
	return task.ResolverHint() == c.meta.Name
}

// HealthCheck aggregates the health of every node's resolver. Traversal
// never consults it; an unhealthy node fails its own invocation instead.
func (c *Composer) HealthCheck(ctx context.Context) bool {
	for _, n := range c.nodes {
		if !n.Resolver.HealthCheck(ctx) {
			return false
		}
	}
	return true
}

// Resolve runs the mastery without execution-state bookkeeping.
func (c *Composer) Resolve(ctx context.Context, task *models.Task) (interface{}, error) {
	return c.Execute(ctx, task, nil), nil
}

// Execute traverses the graph starting at the entry node, recording the
// path and per-node results into state when one is supplied.
//
// Each step invokes the current node's resolver through the contract
// wrapper, then rebuilds a fresh task for the successor from the result's
// output (metadata copied, id and name preserved) so no task value is
// shared across steps. The exit-node check runs after invocation. A
// non-exit node with several successors advances to Next[0] only; true
// branching happens through the conditional builder's router indirection.
func (c *Composer) Execute(ctx context.Context, task *models.Task, state *models.ExecutionState) *models.TaskResult {
	current := c.nodes[c.entry]
	currentTask := task

	for depth := 0; ; depth++ {
		if depth >= c.maxDepth {
			c.logger.Errorf("Mastery '%s' exceeded maximum depth %d at node '%s'", c.meta.Name, c.maxDepth, current.ID)
			taskErr := models.NewTaskError(currentTask, models.ErrTypeInternalError,
				fmt.Sprintf("maximum depth %d exceeded in mastery '%s'", c.maxDepth, c.meta.Name),
				map[string]interface{}{"node": current.ID})
			result := models.NewErrorResult(currentTask, taskErr)
			if state != nil {
				state.RecordNode(current.ID, result)
			}
			return result
		}

		result := resolver.Invoke(ctx, current.Resolver, currentTask)
		if state != nil {
			state.RecordNode(current.ID, result)
		}

		if _, isExit := c.exits[current.ID]; isExit {
			return result
		}
		if !current.CanProceed(result) {
			c.logger.Infof("Mastery '%s' stopping at node '%s': condition not met", c.meta.Name, current.ID)
			return result
		}
		if len(current.Next) == 0 {
			return result
		}

		currentTask = c.nextTask(currentTask, result)
		current = c.nodes[current.Next[0]]
	}
}

// nextTask wraps a node result into the task handed to the successor.
// The id and name survive across steps so the whole run reads as one unit
// of work; everything else is a fresh value.
func (c *Composer) nextTask(prev *models.Task, result *models.TaskResult) *models.Task {
	input := make(map[string]interface{}, len(result.OutputData))
	for k, v := range result.OutputData {
		input[k] = v
	}
	next := models.NewTask(prev.Name, prev.Description, input)
	next.ID = prev.ID
	next.Metadata = prev.Metadata
	next.Metadata.UpdatedAt = time.Now()
	for k, v := range prev.Context {
		next.Context[k] = v
	}
	return next
}

// Definition renders the composer into its serializable form. Conditions
// are not data and are omitted; rebinding applies the default condition.
func (c *Composer) Definition() *models.MasteryDefinition {
	ids := make([]string, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	def := &models.MasteryDefinition{
		Name:        c.meta.Name,
		Version:     c.meta.Version,
		Description: c.meta.Description,
		EntryNode:   c.entry,
		MaxDepth:    c.maxDepth,
		Tags:        append([]string{}, c.tags...),
		Parameters:  c.params,
		CreatedAt:   c.createdAt,
		UpdatedAt:   c.updatedAt,
	}
	for _, id := range ids {
		n := c.nodes[id]
		def.Nodes = append(def.Nodes, models.NodeDefinition{
			ID:       id,
			Resolver: n.Resolver.Metadata().Name,
			Next:     append([]string{}, n.Next...),
		})
	}
	exits := make([]string, 0, len(c.exits))
	for id := range c.exits {
		exits = append(exits, id)
	}
	sort.Strings(exits)
	def.ExitNodes = exits
	return def
}

// FromDefinition reconstructs a composer from its serialized form,
// re-binding node definitions to live resolver instances by name.
func FromDefinition(def *models.MasteryDefinition, resolvers map[string]resolver.Resolver, opts ...ComposerOption) (*Composer, error) {
	nodes := make([]*Node, 0, len(def.Nodes))
	for _, nd := range def.Nodes {
		res, ok := resolvers[nd.Resolver]
		if !ok {
			return nil, errors.Errorf("mastery '%s': no resolver bound for '%s'", def.Name, nd.Resolver)
		}
		nodes = append(nodes, NewNode(nd.ID, res, nd.Next...))
	}
	all := opts
	if def.MaxDepth > 0 {
		all = append([]ComposerOption{WithMaxDepth(def.MaxDepth)}, all...)
	}
	if len(def.Tags) > 0 {
		all = append(all, WithTags(def.Tags...))
	}
	if def.Description != "" {
		all = append(all, WithDescription(def.Description))
	}
	if def.Parameters != nil {
		all = append(all, WithParameters(def.Parameters))
	}
	return NewComposer(def.Name, def.Version, nodes, def.EntryNode, def.ExitNodes, all...)
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
