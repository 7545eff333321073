package service

import (
	"context"
	"sync"

	"github.com/masterylab/mastery/pkg/executor"
	"github.com/masterylab/mastery/pkg/mastery"
	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/registry"
	"github.com/masterylab/mastery/pkg/resolver"
	"github.com/masterylab/mastery/pkg/storage"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for MasteryService.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// MasteryService binds the orchestration kernel to a Store: it persists
// mastery definitions, re-binds stored definitions to live resolvers,
// executes masteries by name and records their runs.
type MasteryService struct {
	store     storage.Store
	registry  *registry.Registry
	executor  *executor.Executor
	resolvers map[string]resolver.Resolver
	logger    Logger
	mu        sync.RWMutex
}

func NewMasteryService(store storage.Store, logger Logger) *MasteryService {
	reg := registry.NewRegistry(registry.WithLogger(logger))
	return &MasteryService{
		store:     store,
		registry:  reg,
		executor:  executor.NewExecutor(reg, executor.WithLogger(logger)),
		resolvers: make(map[string]resolver.Resolver),
		logger:    logger,
	}
}

// Registry exposes the service's versioned registry.
func (s *MasteryService) Registry() *registry.Registry {
	return s.registry
}

// Executor exposes the service's workflow executor.
func (s *MasteryService) Executor() *executor.Executor {
	return s.executor
}

// BindResolver makes a live resolver available for definition re-binding
// and registers it for discovery.
func (s *MasteryService) BindResolver(res resolver.Resolver, capabilities, tags []string) error {
	if err := s.registry.Register(res, capabilities, tags); err != nil {
		return err
	}
	s.mu.Lock()
	s.resolvers[res.Metadata().Name] = res
	s.mu.Unlock()
	s.logger.Infof("Bound resolver '%s'", res.Metadata().Name)
	return nil
}

// SaveMastery persists a composer's definition and registers the composer
// for execution.
func (s *MasteryService) SaveMastery(c *mastery.Composer) (err error) {
	txStore, err := s.store.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	def := c.Definition()
	if err = txStore.SaveDefinition(*def); err != nil {
		return errors.Wrapf(err, "failed to save mastery '%s'", def.Name)
	}
	if err = s.registry.Register(c, nil, def.Tags); err != nil {
		return err
	}
	s.logger.Infof("Saved mastery '%s' version %s", def.Name, def.Version)
	return nil
}

// LoadMastery fetches a stored definition, re-binds it to the live
// resolvers and registers the reconstructed composer. An empty version
// loads the highest stored version under the registry's tuple ordering.
func (s *MasteryService) LoadMastery(name, version string) (*mastery.Composer, error) {
	var def models.MasteryDefinition
	var err error
	if version != "" {
		def, err = s.store.GetDefinition(name, version)
	} else {
		def, err = s.latestDefinition(name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load mastery '%s'", name)
	}

	s.mu.RLock()
	bindings := make(map[string]resolver.Resolver, len(s.resolvers))
	for k, v := range s.resolvers {
		bindings[k] = v
	}
	s.mu.RUnlock()

	c, err := mastery.FromDefinition(&def, bindings)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Register(c, nil, def.Tags); err != nil {
		return nil, err
	}
	s.logger.Infof("Loaded mastery '%s' version %s", def.Name, def.Version)
	return c, nil
}

func (s *MasteryService) latestDefinition(name string) (models.MasteryDefinition, error) {
	defs, err := s.store.ListVersions(name)
	if err != nil {
		return models.MasteryDefinition{}, err
	}
	if len(defs) == 0 {
		return models.MasteryDefinition{}, storage.ErrNotFound
	}
	best := defs[0]
	for _, def := range defs[1:] {
		if registry.CompareVersions(def.Version, best.Version) > 0 {
			best = def
		}
	}
	return best, nil
}

// ExecuteMastery creates a task from the input, runs the named mastery
// through the executor and persists the run. The returned result is
// always non-nil; the error reports persistence failures only.
func (s *MasteryService) ExecuteMastery(ctx context.Context, name, version string, input map[string]interface{}, opts ...models.TaskOption) (*models.TaskResult, error) {
	task := models.NewTask(name, "", input, opts...)
	result := s.executor.Execute(ctx, name, version, task)

	state, ok := s.executor.ExecutionByTask(task.ID)
	if !ok {
		// Lookup misses only mean the run never entered history (mastery
		// not found); nothing to persist.
		return result, nil
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return result, errors.Wrap(err, "failed to begin transaction")
	}
	if _, err := txStore.SaveExecution(models.NewExecutionRecord(state)); err != nil {
		if rollbackErr := txStore.Rollback(); rollbackErr != nil {
			s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
		}
		return result, errors.Wrapf(err, "failed to record execution of '%s'", name)
	}
	if err := txStore.Commit(); err != nil {
		s.logger.Errorf("Failed to commit: %v", err)
		return result, err
	}
	return result, nil
}

// ListMasteries returns every stored definition.
func (s *MasteryService) ListMasteries() ([]models.MasteryDefinition, error) {
	return s.store.ListDefinitions()
}

// ListExecutions returns persisted runs, newest first, optionally
// filtered by mastery name and truncated to limit.
func (s *MasteryService) ListExecutions(masteryName string, limit int) ([]models.ExecutionRecord, error) {
	return s.store.ListExecutions(masteryName, limit)
}
