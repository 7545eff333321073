package registry

import (
	"regexp"
	"sort"
	"sync"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/resolver"
	"github.com/pkg/errors"
)

// Entry wraps a registered resolver with its metadata, capability and tag
// sets, and running execution statistics. The average execution time is a
// running mean, updated incrementally by RecordExecution.
type Entry struct {
	Resolver     resolver.Resolver
	Metadata     *models.ResolverMetadata
	Capabilities map[string]struct{}
	Tags         map[string]struct{}

	ExecutionCount         int64
	SuccessCount           int64
	ErrorCount             int64
	AverageExecutionTimeMS float64
}

// SuccessRate returns the entry's success ratio, zero before any
// execution.
func (e *Entry) SuccessRate() float64 {
	if e.ExecutionCount == 0 {
		return 0
	}
	return float64(e.SuccessCount) / float64(e.ExecutionCount)
}

func (e *Entry) hasAll(set map[string]struct{}, wanted []string) bool {
	for _, w := range wanted {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// AggregatedStats summarizes all versions of one name, each version's
// mean weighted by its own execution count.
type AggregatedStats struct {
	Name                   string
	Versions               int
	ExecutionCount         int64
	SuccessCount           int64
	ErrorCount             int64
	SuccessRate            float64
	AverageExecutionTimeMS float64
}

// Registry is a versioned store of resolvers or composed masteries keyed
// by (name, version). It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[string]*Entry // name -> version -> entry
	logger  resolver.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

func WithLogger(logger resolver.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entries: make(map[string]map[string]*Entry)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// Register stores a resolver under its (name, version) identity, replacing
// any existing entry with the same pair.
func (r *Registry) Register(res resolver.Resolver, capabilities, tags []string) error {
	meta := res.Metadata()
	if meta == nil || meta.Name == "" {
		return errors.New("resolver has no name")
	}
	if meta.Version == "" {
		return errors.Errorf("resolver '%s' has no version", meta.Name)
	}
	entry := &Entry{
		Resolver:     res,
		Metadata:     meta,
		Capabilities: toSet(capabilities),
		Tags:         toSet(append(append([]string{}, tags...), meta.Tags...)),
	}
	r.mu.Lock()
	if _, ok := r.entries[meta.Name]; !ok {
		r.entries[meta.Name] = make(map[string]*Entry)
	}
	r.entries[meta.Name][meta.Version] = entry
	r.mu.Unlock()
	r.logger.Infof("Registered '%s' version %s", meta.Name, meta.Version)
	return nil
}

// Unregister removes one version, or every version when version is empty.
// Removing something absent is not an error.
func (r *Registry) Unregister(name, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version == "" {
		delete(r.entries, name)
		return
	}
	if versions, ok := r.entries[name]; ok {
		delete(versions, version)
		if len(versions) == 0 {
			delete(r.entries, name)
		}
	}
}

// Get returns the entry for (name, version). An empty version selects the
// highest version under the tuple ordering.
func (r *Registry) Get(name, version string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(name, version)
}

func (r *Registry) getLocked(name, version string) (*Entry, bool) {
	versions, ok := r.entries[name]
	if !ok || len(versions) == 0 {
		return nil, false
	}
	if version != "" {
		e, ok := versions[version]
		return e, ok
	}
	var best string
	for v := range versions {
		if best == "" || compareVersions(v, best) > 0 {
			best = v
		}
	}
	return versions[best], true
}

// GetAllVersions returns every version registered under name, sorted
// ascending by the tuple ordering.
func (r *Registry) GetAllVersions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.entries[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return compareVersions(out[i], out[j]) < 0 })
	return out
}

// ListNames returns the distinct registered names, sorted.
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search returns the latest version of every distinct name whose latest
// entry matches. namePattern is an anchored prefix regex; tags and
// capabilities use subset semantics against the entry's own sets.
func (r *Registry) Search(namePattern string, tags, capabilities []string) ([]*Entry, error) {
	var re *regexp.Regexp
	if namePattern != "" {
		var err error
		re, err = regexp.Compile("^" + namePattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid name pattern '%s'", namePattern)
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*Entry
	for name := range r.entries {
		entry, ok := r.getLocked(name, "")
		if !ok {
			continue
		}
		if re != nil && !re.MatchString(name) {
			continue
		}
		if !entry.hasAll(entry.Tags, tags) {
			continue
		}
		if !entry.hasAll(entry.Capabilities, capabilities) {
			continue
		}
		matches = append(matches, entry)
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Metadata.Name < matches[j].Metadata.Name
	})
	return matches, nil
}

// FindForTask locates a resolver for the task: an explicit hint wins, then
// a linear scan over latest-version entries for the first whose CanHandle
// accepts the task. No match is not an error.
func (r *Registry) FindForTask(task *models.Task) (*Entry, bool) {
	if hint := task.ResolverHint(); hint != "" {
		if entry, ok := r.Get(hint, ""); ok {
			return entry, true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry, ok := r.getLocked(name, "")
		if !ok {
			continue
		}
		if entry.Resolver.CanHandle(task) {
			return entry, true
		}
	}
	return nil, false
}

// RecordExecution feeds one execution outcome into the statistics of the
// exact (name, version) entry, updating the running mean in place.
func (r *Registry) RecordExecution(name, version string, success bool, executionTimeMS float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.entries[name]
	if !ok {
		return
	}
	entry, ok := versions[version]
	if !ok {
		return
	}
	entry.ExecutionCount++
	if success {
		entry.SuccessCount++
	} else {
		entry.ErrorCount++
	}
	entry.AverageExecutionTimeMS += (executionTimeMS - entry.AverageExecutionTimeMS) / float64(entry.ExecutionCount)
}

// Stats aggregates statistics across all versions of a name on demand,
// weighting each version's mean by its own execution count.
func (r *Registry) Stats(name string) (AggregatedStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.entries[name]
	if !ok {
		return AggregatedStats{}, false
	}
	agg := AggregatedStats{Name: name, Versions: len(versions)}
	var weighted float64
	for _, entry := range versions {
		agg.ExecutionCount += entry.ExecutionCount
		agg.SuccessCount += entry.SuccessCount
		agg.ErrorCount += entry.ErrorCount
		weighted += entry.AverageExecutionTimeMS * float64(entry.ExecutionCount)
	}
	if agg.ExecutionCount > 0 {
		agg.SuccessRate = float64(agg.SuccessCount) / float64(agg.ExecutionCount)
		agg.AverageExecutionTimeMS = weighted / float64(agg.ExecutionCount)
	}
	return agg, true
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

type noopLogger struct{}

func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}
