package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lemonberrylabs/calcd/pkg/store"
)

// ErrInvalidArgument is wrapped by Runner.Start when the execution
// argument is not a valid JSON object.
var ErrInvalidArgument = errors.New("invalid argument")

// Argument is the JSON document an execution may carry.
type Argument struct {
	// Input overrides the Brainfuck program's input queue.
	Input *string `json:"input,omitempty"`
}

// ParseArgument decodes an execution argument. An empty string is an
// empty argument.
func ParseArgument(raw string) (Argument, error) {
	var arg Argument
	if raw == "" {
		return arg, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&arg); err != nil {
		return arg, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return arg, nil
}

// Runner executes saved programs asynchronously and records the outcome
// in the store. Running executions can be cancelled.
type Runner struct {
	engine *Engine
	store  *store.Store
	log    *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a runner.
func NewRunner(engine *Engine, s *store.Store) *Runner {
	return &Runner{
		engine:  engine,
		store:   s,
		log:     engine.log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Store returns the backing store.
func (r *Runner) Store() *store.Store {
	return r.store
}

// Engine returns the engine executions run on.
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Start records a new execution of workflowName and runs it in the
// background. The returned execution is ACTIVE.
func (r *Runner) Start(workflowName, argument string) (*store.Execution, error) {
	arg, err := ParseArgument(argument)
	if err != nil {
		return nil, err
	}

	exec, prog, err := r.store.CreateExecution(workflowName, argument)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[exec.Name] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.forget(exec.Name)

		value, err := r.engine.Execute(ctx, prog, arg.Input)
		if err != nil {
			err = r.store.FailExecution(exec.Name, ErrorValue(err), string(prog.Kind))
		} else {
			err = r.store.CompleteExecution(exec.Name, value)
		}
		switch {
		case errors.Is(err, store.ErrNotActive):
			r.log.Debug("execution finished after cancellation", zap.String("execution", exec.Name))
		case err != nil:
			r.log.Error("recording execution outcome", zap.String("execution", exec.Name), zap.Error(err))
		}
	}()
	return exec, nil
}

func (r *Runner) forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[name]; ok {
		cancel()
		delete(r.cancels, name)
	}
}

// Cancel marks an active execution CANCELLED and stops its run.
func (r *Runner) Cancel(name string) (*store.Execution, error) {
	exec, err := r.store.CancelExecution(name)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if cancel, ok := r.cancels[name]; ok {
		cancel()
	}
	r.mu.Unlock()
	return exec, nil
}

// Wait blocks until every started execution has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels all running executions and waits for them.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}
