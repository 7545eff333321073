package storage

import (
	"github.com/masterylab/mastery/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a definition or execution does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence boundary of the kernel: mastery
// definitions in their serializable form, and flattened execution
// records. Implementations provide transactional scoping through Begin.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Definition operations
	SaveDefinition(def models.MasteryDefinition) error
	GetDefinition(name, version string) (models.MasteryDefinition, error)
	ListDefinitions() ([]models.MasteryDefinition, error)
	ListVersions(name string) ([]models.MasteryDefinition, error)
	DeleteDefinition(name, version string) error

	// Execution operations
	SaveExecution(rec models.ExecutionRecord) (int64, error)
	ListExecutions(masteryName string, limit int) ([]models.ExecutionRecord, error)
}
