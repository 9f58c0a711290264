package grpcapi

import (
	"context"
	"net"
	"strings"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
	workflows "cloud.google.com/go/workflows/apiv1"
	workflowspb "cloud.google.com/go/workflows/apiv1/workflowspb"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	executionspb "cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/store"
)

const parent = "projects/my-project/locations/us-central1"

func startTestServer(t *testing.T) (string, *runtime.Runner) {
	t.Helper()
	runner := runtime.NewRunner(runtime.NewEngine(), store.New())
	srv := New(runner)

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.grpc.Serve(lis)

	t.Cleanup(func() {
		srv.grpc.Stop()
		runner.Shutdown()
	})
	return lis.Addr().String(), runner
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func createProgram(t *testing.T, client workflowspb.WorkflowsClient, id, source string) *longrunningpb.Operation {
	t.Helper()
	op, err := client.CreateWorkflow(context.Background(), &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: id,
		Workflow: &workflowspb.Workflow{
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: source},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkflow(%s): %v", id, err)
	}
	return op
}

func TestCreateAndGetWorkflow(t *testing.T) {
	addr, _ := startTestServer(t)
	conn := dial(t, addr)
	client := workflowspb.NewWorkflowsClient(conn)
	ctx := context.Background()

	op := createProgram(t, client, "hello", "kind: brainfuck\nsource: '+++.'")
	if !op.GetDone() {
		t.Fatal("expected operation to be done")
	}
	if !strings.HasPrefix(op.GetName(), parent+"/operations/") {
		t.Fatalf("unexpected operation name: %s", op.GetName())
	}

	got, err := longrunningpb.NewOperationsClient(conn).GetOperation(ctx, &longrunningpb.GetOperationRequest{Name: op.GetName()})
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if !got.GetDone() {
		t.Fatal("expected stored operation to be done")
	}

	wf, err := client.GetWorkflow(ctx, &workflowspb.GetWorkflowRequest{Name: parent + "/workflows/hello"})
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if wf.GetState() != workflowspb.Workflow_ACTIVE {
		t.Fatalf("unexpected state: %v", wf.GetState())
	}
	if wf.GetLabels()["kind"] != "brainfuck" {
		t.Fatalf("unexpected kind label: %v", wf.GetLabels())
	}
	if wf.GetSourceContents() == "" {
		t.Fatal("expected source_contents to be set")
	}
}

func TestListUpdateDeleteWorkflow(t *testing.T) {
	addr, _ := startTestServer(t)
	client := workflowspb.NewWorkflowsClient(dial(t, addr))
	ctx := context.Background()

	for _, id := range []string{"wf-b", "wf-a"} {
		createProgram(t, client, id, "1 + 1")
	}

	resp, err := client.ListWorkflows(ctx, &workflowspb.ListWorkflowsRequest{Parent: parent})
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(resp.GetWorkflows()) != 2 || resp.GetWorkflows()[0].GetName() != parent+"/workflows/wf-a" {
		t.Fatalf("unexpected list: %v", resp.GetWorkflows())
	}

	name := parent + "/workflows/wf-a"
	if _, err := client.UpdateWorkflow(ctx, &workflowspb.UpdateWorkflowRequest{
		Workflow: &workflowspb.Workflow{
			Name:       name,
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "2 + 2"},
		},
	}); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}
	wf, err := client.GetWorkflow(ctx, &workflowspb.GetWorkflowRequest{Name: name})
	if err != nil {
		t.Fatalf("GetWorkflow after update: %v", err)
	}
	if wf.GetSourceContents() != "2 + 2" {
		t.Fatalf("source not updated: %s", wf.GetSourceContents())
	}

	_, err = client.UpdateWorkflow(ctx, &workflowspb.UpdateWorkflowRequest{
		Workflow: &workflowspb.Workflow{
			Name:       name,
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "2 +"},
		},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for broken source, got %v", err)
	}

	op, err := client.DeleteWorkflow(ctx, &workflowspb.DeleteWorkflowRequest{Name: name})
	if err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	if !op.GetDone() {
		t.Fatal("expected delete operation to be done")
	}
	_, err = client.GetWorkflow(ctx, &workflowspb.GetWorkflowRequest{Name: name})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestCreateWorkflowErrors(t *testing.T) {
	addr, _ := startTestServer(t)
	client := workflowspb.NewWorkflowsClient(dial(t, addr))
	ctx := context.Background()

	_, err := client.CreateWorkflow(ctx, &workflowspb.CreateWorkflowRequest{
		Parent:   parent,
		Workflow: &workflowspb.Workflow{},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing workflow_id, got %v", err)
	}

	createProgram(t, client, "dup", "1")
	_, err = client.CreateWorkflow(ctx, &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: "dup",
		Workflow: &workflowspb.Workflow{
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "1"},
		},
	})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestExecutions(t *testing.T) {
	addr, runner := startTestServer(t)
	conn := dial(t, addr)
	wfClient := workflowspb.NewWorkflowsClient(conn)
	exClient := executionspb.NewExecutionsClient(conn)
	ctx := context.Background()

	createProgram(t, wfClient, "calc", "r = 3; r * r")
	createProgram(t, wfClient, "echo", "kind: brainfuck\nsource: ',[.,]'")

	calcExec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent + "/workflows/calc",
		Execution: &executionspb.Execution{},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	echoExec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent + "/workflows/echo",
		Execution: &executionspb.Execution{Argument: `{"input":"hello world"}`},
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	runner.Wait()

	got, err := exClient.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: calcExec.GetName()})
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.GetState() != executionspb.Execution_SUCCEEDED {
		t.Fatalf("expected SUCCEEDED, got %v (error: %v)", got.GetState(), got.GetError())
	}
	if !strings.Contains(got.GetResult(), `{"segment":"r * r","value":9}`) {
		t.Fatalf("unexpected result: %s", got.GetResult())
	}

	got, err = exClient.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: echoExec.GetName()})
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if !strings.Contains(got.GetResult(), `"output":"hello world"`) {
		t.Fatalf("unexpected result: %s", got.GetResult())
	}

	resp, err := exClient.ListExecutions(ctx, &executionspb.ListExecutionsRequest{Parent: parent + "/workflows/calc"})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(resp.GetExecutions()) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(resp.GetExecutions()))
	}

	_, err = exClient.CancelExecution(ctx, &executionspb.CancelExecutionRequest{Name: calcExec.GetName()})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition cancelling a finished execution, got %v", err)
	}

	_, err = exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent:    parent + "/workflows/calc",
		Execution: &executionspb.Execution{Argument: `"not an object"`},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for a bad argument, got %v", err)
	}
}

func TestOfficialClients(t *testing.T) {
	addr, runner := startTestServer(t)
	ctx := context.Background()
	opts := []option.ClientOption{
		option.WithEndpoint(addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}

	wfClient, err := workflows.NewClient(ctx, opts...)
	if err != nil {
		t.Fatalf("workflows.NewClient: %v", err)
	}
	defer wfClient.Close()

	op, err := wfClient.CreateWorkflow(ctx, &workflowspb.CreateWorkflowRequest{
		Parent:     parent,
		WorkflowId: "official",
		Workflow: &workflowspb.Workflow{
			SourceCode: &workflowspb.Workflow_SourceContents{SourceContents: "max(3, 9, 4)"},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	wf, err := op.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if wf.GetName() != parent+"/workflows/official" {
		t.Fatalf("unexpected name: %s", wf.GetName())
	}

	exClient, err := executions.NewClient(ctx, opts...)
	if err != nil {
		t.Fatalf("executions.NewClient: %v", err)
	}
	defer exClient.Close()

	exec, err := exClient.CreateExecution(ctx, &executionspb.CreateExecutionRequest{Parent: wf.GetName()})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	runner.Wait()

	got, err := exClient.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: exec.GetName()})
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.GetState() != executionspb.Execution_SUCCEEDED || !strings.Contains(got.GetResult(), `"value":9`) {
		t.Fatalf("unexpected execution: %v %s", got.GetState(), got.GetResult())
	}
}
