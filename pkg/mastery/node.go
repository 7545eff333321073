package mastery

import (
	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
)

// Condition decides whether traversal continues past a node, given that
// node's result.
type Condition func(result *models.TaskResult) bool

// Node is one step in a mastery graph: a resolver, the ids of its
// successors, and an optional condition gating advancement.
type Node struct {
	ID        string
	Resolver  resolver.Resolver
	Next      []string
	Condition Condition
}

// NewNode builds a node with the default condition (proceed iff the
// result is COMPLETED).
func NewNode(id string, res resolver.Resolver, next ...string) *Node {
	return &Node{ID: id, Resolver: res, Next: next}
}

// WithCondition replaces the node's advancement condition.
func (n *Node) WithCondition(cond Condition) *Node {
	n.Condition = cond
	return n
}

// CanProceed applies the node's condition to the result.
func (n *Node) CanProceed(result *models.TaskResult) bool {
	if n.Condition != nil {
		return n.Condition(result)
	}
	return result.Status == models.CompletedTaskStatus
}
