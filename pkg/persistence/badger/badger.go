// Package badger provides an embedded persistence implementation on top of BadgerDB.
//
// Keys: wf:<workflowID>, ex:<executionID> and the index exwf:<workflowID>:<executionID>.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
)

const (
	workflowPrefix  = "wf:"
	executionPrefix = "ex:"
	indexPrefix     = "exwf:"
)

type Persistence struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewPersistence opens the database in dir, accepting a badger:// prefix. An empty dir opens an
// in-memory database.
func NewPersistence(logger *slog.Logger, dir string) (*Persistence, error) {
	dir = strings.Replace(dir, "badger://", "", 1)

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &Persistence{db: db, logger: logger.With("module", "badger-persistence")}, nil
}

func workflowKey(id string) []byte {
	return []byte(workflowPrefix + id)
}

func executionKey(id string) []byte {
	return []byte(executionPrefix + id)
}

func indexKey(workflowID, executionID string) []byte {
	return []byte(indexPrefix + workflowID + ":" + executionID)
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0)

	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(workflowPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			workflow := &models.Workflow{}

			err := it.Item().Value(func(val []byte) error {
				return persistence.Decode(val, workflow)
			})
			if err != nil {
				return err
			}

			workflows = append(workflows, workflow)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

func (p *Persistence) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	err := p.db.View(func(txn *badger.Txn) error {
		return get(txn, workflowKey(id), workflow)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = persistence.ErrWorkflowNotFound
		}

		return nil, persistence.NewWorkflowError("GetWorkflow", id, err)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	persistence.Stamp(workflow)

	data, err := persistence.Encode(workflow)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	err = p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(workflowKey(workflow.ID), data)
	})
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(workflowKey(id))
		if err != nil {
			return err
		}

		return txn.Delete(workflowKey(id))
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = persistence.ErrWorkflowNotFound
		}

		return persistence.NewWorkflowError("DeleteWorkflow", id, err)
	}

	return nil
}

func (p *Persistence) Register(_ context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	data, err := persistence.Encode(execution)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	err = p.db.Update(func(txn *badger.Txn) error {
		err := txn.Set(executionKey(execution.ID), data)
		if err != nil {
			return err
		}

		return txn.Set(indexKey(execution.WorkflowID, execution.ID), nil)
	})
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	return execution, nil
}

func (p *Persistence) GetWorkflowExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}

	err := p.db.View(func(txn *badger.Txn) error {
		return get(txn, executionKey(id), execution)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("GetWorkflowExecution", id, err)
	}

	return execution, nil
}

func (p *Persistence) DeleteIdlesFor(_ context.Context, workflowID string) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		executions, err := byWorkflow(txn, workflowID)
		if err != nil {
			return err
		}

		for _, execution := range executions {
			if execution.Progressed() {
				continue
			}

			err = txn.Delete(executionKey(execution.ID))
			if err != nil {
				return err
			}

			err = txn.Delete(indexKey(workflowID, execution.ID))
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete idle executions of workflow %s: %w", workflowID, err)
	}

	return nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	var executions []*models.WorkflowExecution

	err := p.db.View(func(txn *badger.Txn) error {
		var err error

		executions, err = byWorkflow(txn, workflowID)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions of workflow %s: %w", workflowID, err)
	}

	persistence.SortExecutions(executions)

	return executions, nil
}

func (p *Persistence) ListExecutions(
	_ context.Context,
	statuses ...models.ExecutionStatus,
) ([]*models.WorkflowExecution, error) {
	executions := make([]*models.WorkflowExecution, 0)

	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(executionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			execution := &models.WorkflowExecution{}

			err := it.Item().Value(func(val []byte) error {
				return persistence.Decode(val, execution)
			})
			if err != nil {
				return err
			}

			if persistence.MatchesStatus(execution.Status, statuses) {
				executions = append(executions, execution)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	persistence.SortExecutions(executions)

	return executions, nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if p.db.IsClosed() {
		return errors.New("badger database is closed")
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	return nil
}

// RunGC reclaims value log space. Errors reporting nothing to collect are ignored.
func (p *Persistence) RunGC(ctx context.Context) {
	err := p.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		p.logger.WarnContext(ctx, "Value log garbage collection failed", "error", err)
	}
}

func get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return persistence.Decode(val, v)
	})
}

func byWorkflow(txn *badger.Txn, workflowID string) ([]*models.WorkflowExecution, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)

	prefix := []byte(indexPrefix + workflowID + ":")
	ids := make([]string, 0)

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
	}

	it.Close()
	sort.Strings(ids)

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		execution := &models.WorkflowExecution{}

		err := get(txn, executionKey(id), execution)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
		}

		executions = append(executions, execution)
	}

	return executions, nil
}
