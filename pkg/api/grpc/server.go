// Package grpcapi serves saved programs and their executions over the
// Cloud Workflows gRPC services, so the official Google Cloud Go client
// libraries can drive calcd.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	workflowspb "cloud.google.com/go/workflows/apiv1/workflowspb"
	executionspb "cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/lemonberrylabs/calcd/pkg/parser"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/store"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Server implements the Workflows, Executions and Operations services.
type Server struct {
	workflowspb.UnimplementedWorkflowsServer
	executionspb.UnimplementedExecutionsServer
	longrunningpb.UnimplementedOperationsServer

	runner *runtime.Runner
	log    *zap.Logger
	grpc   *grpc.Server

	mu         sync.RWMutex
	operations map[string]*longrunningpb.Operation
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a gRPC server running executions on runner.
func New(runner *runtime.Runner, opts ...Option) *Server {
	srv := &Server{
		runner:     runner,
		log:        zap.NewNop(),
		operations: make(map[string]*longrunningpb.Operation),
	}
	for _, opt := range opts {
		opt(srv)
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(srv.logCalls))
	workflowspb.RegisterWorkflowsServer(gs, srv)
	executionspb.RegisterExecutionsServer(gs, srv)
	longrunningpb.RegisterOperationsServer(gs, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Debug("grpc call failed", zap.String("method", info.FullMethod), zap.Error(err))
	}
	return resp, err
}

// statusError maps store and runner errors to gRPC status errors.
func statusError(err error) error {
	switch {
	case types.IsTag(err, types.TagNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrNotActive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, runtime.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// --- Workflows service ---

func (s *Server) CreateWorkflow(ctx context.Context, req *workflowspb.CreateWorkflowRequest) (*longrunningpb.Operation, error) {
	if req.GetWorkflowId() == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow_id is required")
	}
	wfProto := req.GetWorkflow()
	if wfProto == nil {
		return nil, status.Error(codes.InvalidArgument, "workflow is required")
	}
	src := wfProto.GetSourceContents()
	if src == "" {
		return nil, status.Error(codes.InvalidArgument, "source_contents is required")
	}

	prog, err := parser.Parse([]byte(src))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid program definition: %v", err)
	}

	wf, err := s.runner.Store().CreateWorkflow(req.GetParent(), req.GetWorkflowId(), src, wfProto.GetDescription(), prog)
	if err != nil {
		return nil, statusError(err)
	}
	return s.doneOperation(req.GetParent(), workflowToProto(wf))
}

func (s *Server) GetWorkflow(ctx context.Context, req *workflowspb.GetWorkflowRequest) (*workflowspb.Workflow, error) {
	wf, err := s.runner.Store().GetWorkflow(req.GetName())
	if err != nil {
		return nil, statusError(err)
	}
	return workflowToProto(wf), nil
}

func (s *Server) ListWorkflows(ctx context.Context, req *workflowspb.ListWorkflowsRequest) (*workflowspb.ListWorkflowsResponse, error) {
	workflows := s.runner.Store().ListWorkflows(req.GetParent())

	pbWorkflows := make([]*workflowspb.Workflow, len(workflows))
	for i, wf := range workflows {
		pbWorkflows[i] = workflowToProto(wf)
	}
	return &workflowspb.ListWorkflowsResponse{Workflows: pbWorkflows}, nil
}

func (s *Server) UpdateWorkflow(ctx context.Context, req *workflowspb.UpdateWorkflowRequest) (*longrunningpb.Operation, error) {
	wfProto := req.GetWorkflow()
	if wfProto == nil {
		return nil, status.Error(codes.InvalidArgument, "workflow is required")
	}

	name := wfProto.GetName()
	src := wfProto.GetSourceContents()

	var (
		wf  *store.Workflow
		err error
	)
	if src != "" {
		prog, perr := parser.Parse([]byte(src))
		if perr != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid program definition: %v", perr)
		}
		wf, err = s.runner.Store().UpdateWorkflow(name, src, wfProto.GetDescription(), prog)
	} else {
		wf, err = s.runner.Store().UpdateWorkflow(name, "", wfProto.GetDescription(), nil)
	}
	if err != nil {
		return nil, statusError(err)
	}
	return s.doneOperation(parentOf(name), workflowToProto(wf))
}

func (s *Server) DeleteWorkflow(ctx context.Context, req *workflowspb.DeleteWorkflowRequest) (*longrunningpb.Operation, error) {
	name := req.GetName()
	if err := s.runner.Store().DeleteWorkflow(name); err != nil {
		return nil, statusError(err)
	}
	return s.doneOperation(parentOf(name), &emptypb.Empty{})
}

// --- Executions service ---

func (s *Server) CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest) (*executionspb.Execution, error) {
	exec, err := s.runner.Start(req.GetParent(), req.GetExecution().GetArgument())
	if err != nil {
		return nil, statusError(err)
	}
	return executionToProto(exec), nil
}

func (s *Server) GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest) (*executionspb.Execution, error) {
	exec, err := s.runner.Store().GetExecution(req.GetName())
	if err != nil {
		return nil, statusError(err)
	}
	return executionToProto(exec), nil
}

func (s *Server) ListExecutions(ctx context.Context, req *executionspb.ListExecutionsRequest) (*executionspb.ListExecutionsResponse, error) {
	executions := s.runner.Store().ListExecutions(req.GetParent())

	pbExecs := make([]*executionspb.Execution, len(executions))
	for i, exec := range executions {
		pbExecs[i] = executionToProto(exec)
	}
	return &executionspb.ListExecutionsResponse{Executions: pbExecs}, nil
}

func (s *Server) CancelExecution(ctx context.Context, req *executionspb.CancelExecutionRequest) (*executionspb.Execution, error) {
	exec, err := s.runner.Cancel(req.GetName())
	if err != nil {
		return nil, statusError(err)
	}
	return executionToProto(exec), nil
}

// --- Operations service ---

// GetOperation returns an operation recorded by a workflow mutation. All
// operations complete before they are returned.
func (s *Server) GetOperation(ctx context.Context, req *longrunningpb.GetOperationRequest) (*longrunningpb.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operations[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "operation %q not found", req.GetName())
	}
	return op, nil
}

// doneOperation wraps msg in a completed operation under parent and
// records it for GetOperation.
func (s *Server) doneOperation(parent string, msg proto.Message) (*longrunningpb.Operation, error) {
	resp, err := anypb.New(msg)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal operation result: %v", err)
	}
	op := &longrunningpb.Operation{
		Name:   fmt.Sprintf("%s/operations/%s", parent, uuid.NewString()),
		Done:   true,
		Result: &longrunningpb.Operation_Response{Response: resp},
	}

	s.mu.Lock()
	s.operations[op.Name] = op
	s.mu.Unlock()
	return op, nil
}

// --- Conversions ---

// parentOf strips "/workflows/ID" from a program name.
func parentOf(name string) string {
	if i := strings.Index(name, "/workflows/"); i >= 0 {
		return name[:i]
	}
	return name
}

func workflowToProto(wf *store.Workflow) *workflowspb.Workflow {
	pb := &workflowspb.Workflow{
		Name:        wf.Name,
		Description: wf.Description,
		RevisionId:  wf.RevisionID,
		CreateTime:  timestamppb.New(wf.CreateTime),
		UpdateTime:  timestamppb.New(wf.UpdateTime),
		Labels:      map[string]string{"kind": string(wf.Kind)},
	}

	switch wf.State {
	case store.WorkflowActive:
		pb.State = workflowspb.Workflow_ACTIVE
	default:
		pb.State = workflowspb.Workflow_STATE_UNSPECIFIED
	}

	if wf.SourceCode != "" {
		pb.SourceCode = &workflowspb.Workflow_SourceContents{SourceContents: wf.SourceCode}
	}
	return pb
}

func executionToProto(exec *store.Execution) *executionspb.Execution {
	pb := &executionspb.Execution{
		Name:               exec.Name,
		StartTime:          timestamppb.New(exec.StartTime),
		Argument:           exec.Argument,
		Result:             exec.Result,
		WorkflowRevisionId: exec.WorkflowRevisionID,
	}

	switch exec.State {
	case store.ExecutionActive:
		pb.State = executionspb.Execution_ACTIVE
	case store.ExecutionSucceeded:
		pb.State = executionspb.Execution_SUCCEEDED
	case store.ExecutionFailed:
		pb.State = executionspb.Execution_FAILED
	case store.ExecutionCancelled:
		pb.State = executionspb.Execution_CANCELLED
	default:
		pb.State = executionspb.Execution_STATE_UNSPECIFIED
	}

	if exec.Error != nil {
		pb.Error = &executionspb.Execution_Error{
			Payload: exec.Error.Payload,
			Context: exec.Error.Context,
		}
	}
	if !exec.EndTime.IsZero() {
		pb.EndTime = timestamppb.New(exec.EndTime)
	}
	return pb
}
