package storage

import (
	"time"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory storage, for tests and
// embedded use without a database.
type mockStore struct {
	definitions []models.MasteryDefinition
	executions  []models.ExecutionRecord
	nextID      int64
	committed   bool
}

func NewMockStore() Store {
	return &mockStore{}
}

func (m *mockStore) Begin() (Store, error) {
	m.committed = false
	return m, nil
}

func (m *mockStore) Commit() error {
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveDefinition(def models.MasteryDefinition) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, existing := range m.definitions {
		if existing.Name == def.Name && existing.Version == def.Version {
			def.UpdatedAt = time.Now()
			m.definitions[i] = def
			return nil
		}
	}
	m.definitions = append(m.definitions, def)
	return nil
}

func (m *mockStore) GetDefinition(name, version string) (models.MasteryDefinition, error) {
	for _, def := range m.definitions {
		if def.Name == name && def.Version == version {
			return def, nil
		}
	}
	return models.MasteryDefinition{}, ErrNotFound
}

func (m *mockStore) ListDefinitions() ([]models.MasteryDefinition, error) {
	return append([]models.MasteryDefinition{}, m.definitions...), nil
}

func (m *mockStore) ListVersions(name string) ([]models.MasteryDefinition, error) {
	var defs []models.MasteryDefinition
	for _, def := range m.definitions {
		if def.Name == name {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (m *mockStore) DeleteDefinition(name, version string) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, def := range m.definitions {
		if def.Name == name && def.Version == version {
			m.definitions = append(m.definitions[:i], m.definitions[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) SaveExecution(rec models.ExecutionRecord) (int64, error) {
	if m.committed {
		return 0, errors.New("transaction already committed")
	}
	m.nextID++
	rec.ID = m.nextID
	m.executions = append(m.executions, rec)
	return rec.ID, nil
}

func (m *mockStore) ListExecutions(masteryName string, limit int) ([]models.ExecutionRecord, error) {
	var recs []models.ExecutionRecord
	for i := len(m.executions) - 1; i >= 0; i-- {
		rec := m.executions[i]
		if masteryName != "" && rec.MasteryName != masteryName {
			continue
		}
		recs = append(recs, rec)
		if limit > 0 && len(recs) == limit {
			break
		}
	}
	return recs, nil
}
