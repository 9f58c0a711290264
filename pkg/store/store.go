// Package store provides in-memory storage for saved programs and their
// executions.
package store

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/calcd/pkg/ast"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

var (
	// ErrAlreadyExists is returned when creating a program under a taken name.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotActive is returned when finishing an execution that already finished.
	ErrNotActive = errors.New("not active")
)

// WorkflowState represents the state of a stored program.
type WorkflowState string

const (
	WorkflowActive WorkflowState = "ACTIVE"
)

// ExecutionState represents the state of a program execution.
type ExecutionState string

const (
	ExecutionActive    ExecutionState = "ACTIVE"
	ExecutionSucceeded ExecutionState = "SUCCEEDED"
	ExecutionFailed    ExecutionState = "FAILED"
	ExecutionCancelled ExecutionState = "CANCELLED"
)

// Workflow is a saved program. The name follows the Cloud Workflows
// resource layout, projects/P/locations/L/workflows/ID.
type Workflow struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Kind        ast.Kind      `json:"kind"`
	State       WorkflowState `json:"state"`
	RevisionID  string        `json:"revisionId"`
	CreateTime  time.Time     `json:"createTime"`
	UpdateTime  time.Time     `json:"updateTime"`
	SourceCode  string        `json:"sourceContents"`

	// Program is the parsed definition of the current revision.
	Program *ast.Program `json:"-"`
}

// ID returns the last segment of the name.
func (w *Workflow) ID() string {
	return w.Name[strings.LastIndex(w.Name, "/")+1:]
}

// Execution is one run of a saved program.
type Execution struct {
	Name               string          `json:"name"`
	State              ExecutionState  `json:"state"`
	Argument           string          `json:"argument,omitempty"`
	Result             string          `json:"result,omitempty"`
	Error              *ExecutionError `json:"error,omitempty"`
	StartTime          time.Time       `json:"startTime"`
	EndTime            time.Time       `json:"endTime,omitempty"`
	WorkflowRevisionID string          `json:"workflowRevisionId"`
}

// ID returns the last segment of the name.
func (e *Execution) ID() string {
	return e.Name[strings.LastIndex(e.Name, "/")+1:]
}

// ExecutionError is the failure payload of a failed execution.
type ExecutionError struct {
	Payload string `json:"payload"`
	Context string `json:"context,omitempty"`
}

// Store is a thread-safe in-memory storage for programs and executions.
// Returned records are copies.
type Store struct {
	mu         sync.RWMutex
	workflows  map[string]*Workflow
	executions map[string]*Execution

	revCounter int64
	now        func() time.Time
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		workflows:  make(map[string]*Workflow),
		executions: make(map[string]*Execution),
		now:        time.Now,
	}
}

func workflowNotFound(name string) error {
	return types.NewNotFoundError(fmt.Sprintf("workflow '%s' not found", name))
}

func executionNotFound(name string) error {
	return types.NewNotFoundError(fmt.Sprintf("execution '%s' not found", name))
}

func (s *Store) nextRevision() string {
	s.revCounter++
	return fmt.Sprintf("%06d-%s", s.revCounter, uuid.NewString()[:3])
}

// CreateWorkflow stores a new program under parent.
func (s *Store) CreateWorkflow(parent, workflowID, sourceCode, description string, prog *ast.Program) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fmt.Sprintf("%s/workflows/%s", parent, workflowID)
	if _, exists := s.workflows[name]; exists {
		return nil, fmt.Errorf("workflow '%s' %w", name, ErrAlreadyExists)
	}

	now := s.now()
	if description == "" {
		description = prog.Description
	}
	wf := &Workflow{
		Name:        name,
		Description: description,
		Kind:        prog.Kind,
		State:       WorkflowActive,
		RevisionID:  s.nextRevision(),
		CreateTime:  now,
		UpdateTime:  now,
		SourceCode:  sourceCode,
		Program:     prog,
	}
	s.workflows[name] = wf
	return copyWorkflow(wf), nil
}

// GetWorkflow retrieves a program by its full name.
func (s *Store) GetWorkflow(name string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[name]
	if !ok {
		return nil, workflowNotFound(name)
	}
	return copyWorkflow(wf), nil
}

// ListWorkflows returns all programs under a parent, ordered by name.
func (s *Store) ListWorkflows(parent string) []*Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Workflow
	prefix := parent + "/workflows/"
	for name, wf := range s.workflows {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			result = append(result, copyWorkflow(wf))
		}
	}
	slices.SortFunc(result, func(a, b *Workflow) int { return cmp.Compare(a.Name, b.Name) })
	return result
}

// UpdateWorkflow replaces a program's source and bumps its revision. An
// empty sourceCode keeps the current source; an empty description keeps
// the current description.
func (s *Store) UpdateWorkflow(name, sourceCode, description string, prog *ast.Program) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[name]
	if !ok {
		return nil, workflowNotFound(name)
	}

	if sourceCode != "" && prog != nil {
		wf.SourceCode = sourceCode
		wf.Program = prog
		wf.Kind = prog.Kind
	}
	if description != "" {
		wf.Description = description
	}
	wf.RevisionID = s.nextRevision()
	wf.UpdateTime = s.now()

	return copyWorkflow(wf), nil
}

// DeleteWorkflow removes a program and its executions.
func (s *Store) DeleteWorkflow(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[name]; !ok {
		return workflowNotFound(name)
	}
	delete(s.workflows, name)

	prefix := name + "/executions/"
	for execName := range s.executions {
		if strings.HasPrefix(execName, prefix) {
			delete(s.executions, execName)
		}
	}
	return nil
}

// CreateExecution records a new ACTIVE execution of the current revision
// and returns it with the program it must run.
func (s *Store) CreateExecution(workflowName, argument string) (*Execution, *ast.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[workflowName]
	if !ok {
		return nil, nil, workflowNotFound(workflowName)
	}

	exec := &Execution{
		Name:               fmt.Sprintf("%s/executions/%s", workflowName, uuid.NewString()),
		State:              ExecutionActive,
		Argument:           argument,
		StartTime:          s.now(),
		WorkflowRevisionID: wf.RevisionID,
	}
	s.executions[exec.Name] = exec
	return copyExecution(exec), wf.Program, nil
}

// GetExecution retrieves an execution by name.
func (s *Store) GetExecution(name string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[name]
	if !ok {
		return nil, executionNotFound(name)
	}
	return copyExecution(exec), nil
}

// ListExecutions returns all executions of a program, newest first.
func (s *Store) ListExecutions(workflowName string) []*Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Execution
	prefix := workflowName + "/executions/"
	for name, exec := range s.executions {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			result = append(result, copyExecution(exec))
		}
	}
	slices.SortFunc(result, func(a, b *Execution) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return result
}

// CompleteExecution marks an active execution as succeeded with a result.
func (s *Store) CompleteExecution(name string, result types.Value) error {
	b, err := result.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return s.finish(name, ExecutionSucceeded, func(exec *Execution) {
		exec.Result = string(b)
	})
}

// FailExecution marks an active execution as failed. The payload is the
// JSON encoding of the error value.
func (s *Store) FailExecution(name string, payload types.Value, errContext string) error {
	b, err := payload.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding error payload: %w", err)
	}
	return s.finish(name, ExecutionFailed, func(exec *Execution) {
		exec.Error = &ExecutionError{Payload: string(b), Context: errContext}
	})
}

// CancelExecution marks an active execution as cancelled.
func (s *Store) CancelExecution(name string) (*Execution, error) {
	if err := s.finish(name, ExecutionCancelled, nil); err != nil {
		return nil, err
	}
	return s.GetExecution(name)
}

func (s *Store) finish(name string, state ExecutionState, apply func(*Execution)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[name]
	if !ok {
		return executionNotFound(name)
	}
	if exec.State != ExecutionActive {
		return fmt.Errorf("execution '%s' is %w (state: %s)", name, ErrNotActive, exec.State)
	}

	exec.State = state
	exec.EndTime = s.now()
	if apply != nil {
		apply(exec)
	}
	return nil
}

func copyWorkflow(wf *Workflow) *Workflow {
	out := *wf
	return &out
}

func copyExecution(exec *Execution) *Execution {
	out := *exec
	if exec.Error != nil {
		e := *exec.Error
		out.Error = &e
	}
	return &out
}
