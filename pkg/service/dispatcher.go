package service

import (
	"context"
	"runtime"
	"sync"

	"github.com/masterylab/mastery/pkg/models"
	"github.com/masterylab/mastery/pkg/registry"
	"github.com/masterylab/mastery/pkg/resolver"
	"github.com/masterylab/mastery/pkg/retry"
	"github.com/pkg/errors"
)

// Dispatch is one unit of dispatcher work: a task routed to whichever
// registered resolver claims it.
type Dispatch struct {
	Task *models.Task
	ctx  context.Context
	done chan *models.TaskResult
}

// Result blocks until the dispatched task has finished.
func (d *Dispatch) Result() *models.TaskResult {
	return <-d.done
}

// Dispatcher fans independent tasks out to workers, each worker routing
// its task through the registry and the retry scheduler. Tasks are never
// shared between workers; the kernel's intra-run ordering is untouched
// because every run stays on a single worker.
type Dispatcher struct {
	registry  *registry.Registry
	scheduler *retry.Scheduler
	logger    Logger
	taskChan  chan *Dispatch
	wg        sync.WaitGroup
	ctx       context.Context
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(ctx context.Context, reg *registry.Registry, scheduler *retry.Scheduler, logger Logger) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		scheduler: scheduler,
		logger:    logger,
		ctx:       ctx,
	}
}

// Start launches the worker goroutines; workers <= 0 means one per CPU.
func (d *Dispatcher) Start(workers int) {
	d.startOnce.Do(func() {
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		d.taskChan = make(chan *Dispatch, workers)
		for i := 0; i < workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
	})
}

// Stop drains the queue and waits for all workers to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.taskChan)
		d.wg.Wait()
	})
}

// Submit queues a task for execution and returns a handle to wait on.
// It fails when no registered resolver can handle the task.
func (d *Dispatcher) Submit(ctx context.Context, task *models.Task) (*Dispatch, error) {
	if _, ok := d.registry.FindForTask(task); !ok {
		return nil, errors.Errorf("no resolver can handle task '%s'", task.Name)
	}
	dispatch := &Dispatch{Task: task, ctx: ctx, done: make(chan *models.TaskResult, 1)}
	select {
	case d.taskChan <- dispatch:
		return dispatch, nil
	case <-d.ctx.Done():
		return nil, errors.Wrap(d.ctx.Err(), "dispatcher stopped")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for dispatch := range d.taskChan {
		if d.ctx.Err() != nil {
			dispatch.done <- d.cancelled(dispatch.Task, d.ctx.Err())
			continue
		}
		dispatch.done <- d.execute(dispatch)
	}
}

func (d *Dispatcher) execute(dispatch *Dispatch) *models.TaskResult {
	task := dispatch.Task
	entry, ok := d.registry.FindForTask(task)
	if !ok {
		// The resolver disappeared between Submit and execution.
		taskErr := models.NewTaskError(task, models.ErrTypeNotFound,
			"no resolver can handle task", map[string]interface{}{"task_name": task.Name})
		return models.NewErrorResult(task, taskErr)
	}
	d.logger.Infof("Dispatching task %s to resolver '%s'", task.ID, entry.Metadata.Name)

	var result *models.TaskResult
	if d.scheduler != nil {
		result = d.scheduler.ExecuteWithRetry(dispatch.ctx, entry.Resolver, task, nil)
	} else {
		result = resolver.Invoke(dispatch.ctx, entry.Resolver, task)
	}
	d.registry.RecordExecution(entry.Metadata.Name, entry.Metadata.Version, result.IsSuccess(), result.ExecutionTimeMS)
	return result
}

func (d *Dispatcher) cancelled(task *models.Task, err error) *models.TaskResult {
	d.logger.Errorf("Dispatcher stopped before task %s ran: %v", task.ID, err)
	task.UpdateStatus(models.CancelledTaskStatus)
	return &models.TaskResult{
		TaskID:     task.ID,
		Status:     models.CancelledTaskStatus,
		OutputData: map[string]interface{}{},
		Message:    err.Error(),
	}
}
