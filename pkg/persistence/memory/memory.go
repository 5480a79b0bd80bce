// Package memory provides an in-process persistence implementation on go-memdb. It backs
// tests and single-process development setups; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/hashicorp/go-memdb"
)

const (
	tableWorkflows = "workflows"
	tableRuns      = "runs"
	tableSchedules = "schedules"

	indexID       = "id"
	indexOwner    = "owner"
	indexWorkflow = "workflow"
	indexStatus   = "status"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableWorkflows: {
				Name: tableWorkflows,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:    {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					indexOwner: {Name: indexOwner, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "OwnerID"}},
				},
			},
			tableRuns: {
				Name: tableRuns,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:       {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					indexWorkflow: {Name: indexWorkflow, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: "WorkflowID"}},
					indexStatus:   {Name: indexStatus, Indexer: &memdb.StringFieldIndex{Field: "Status"}},
				},
			},
			tableSchedules: {
				Name: tableSchedules,
				Indexes: map[string]*memdb.IndexSchema{
					indexID:       {Name: indexID, Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					indexWorkflow: {Name: indexWorkflow, Indexer: &memdb.StringFieldIndex{Field: "WorkflowID"}},
				},
			},
		},
	}
}

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	db           *memdb.MemDB
	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	scheduleRepo *ScheduleRepository
}

func NewPersistence() (*Persistence, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memory database: %w", err)
	}

	return &Persistence{
		db:           db,
		workflowRepo: &WorkflowRepository{db: db},
		runRepo:      &RunRepository{db: db},
		scheduleRepo: &ScheduleRepository{db: db},
	}, nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// clone deep-copies a stored object. Objects inside memdb must never be mutated in place,
// and callers get their own copy with JSON-normalised values like the other backends.
func clone[T any](value *T) (*T, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	var copied T

	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, err
	}

	return &copied, nil
}

func collect[T any](it memdb.ResultIterator, keep func(*T) bool) ([]*T, error) {
	items := make([]*T, 0)

	for raw := it.Next(); raw != nil; raw = it.Next() {
		item, ok := raw.(*T)
		if !ok || (keep != nil && !keep(item)) {
			continue
		}

		copied, err := clone(item)
		if err != nil {
			return nil, err
		}

		items = append(items, copied)
	}

	return items, nil
}
