// Package api implements the REST API: one-shot calculate and Brainfuck
// endpoints, plus saved programs and their executions laid out like the
// Google Cloud Workflows and Executions API surface.
package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/calcd/pkg/parser"
	"github.com/lemonberrylabs/calcd/pkg/render"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/store"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	runner *runtime.Runner
	log    *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a new API server.
func New(runner *runtime.Runner, opts ...Option) *Server {
	srv := &Server{
		runner: runner,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             parser.MaxSourceSize * 2,
	})

	// One-shot evaluation
	app.Post("/v1/calculate", srv.calculate)
	app.Post("/v1/brainfuck", srv.brainfuck)
	app.Get("/v1/functions", srv.functions)

	// Saved programs
	app.Post("/v1/projects/:project/locations/:location/workflows", srv.createWorkflow)
	app.Get("/v1/projects/:project/locations/:location/workflows/:workflow", srv.getWorkflow)
	app.Get("/v1/projects/:project/locations/:location/workflows", srv.listWorkflows)
	app.Patch("/v1/projects/:project/locations/:location/workflows/:workflow", srv.updateWorkflow)
	app.Delete("/v1/projects/:project/locations/:location/workflows/:workflow", srv.deleteWorkflow)

	// Executions
	app.Post("/v1/projects/:project/locations/:location/workflows/:workflow/executions", srv.createExecution)
	app.Get("/v1/projects/:project/locations/:location/workflows/:workflow/executions/:execution", srv.getExecution)
	app.Get("/v1/projects/:project/locations/:location/workflows/:workflow/executions", srv.listExecutions)
	app.Post("/v1/projects/:project/locations/:location/workflows/:workflow/executions/:execution\\:cancel", srv.cancelExecution)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Error responses ---

func errorJSON(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

func badRequest(c *fiber.Ctx, format string, args ...any) error {
	return errorJSON(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", fmt.Sprintf(format, args...))
}

// storeError maps store errors to HTTP errors.
func (s *Server) storeError(c *fiber.Ctx, err error) error {
	switch {
	case types.IsTag(err, types.TagNotFound):
		return errorJSON(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errorJSON(c, fiber.StatusConflict, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, store.ErrNotActive):
		return errorJSON(c, fiber.StatusBadRequest, "FAILED_PRECONDITION", err.Error())
	case errors.Is(err, runtime.ErrInvalidArgument):
		return badRequest(c, "%v", err)
	}
	s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL", err.Error())
}

// --- One-shot handlers ---

type calculateRequest struct {
	Expression string `json:"expression"`
}

func (s *Server) calculate(c *fiber.Ctx) error {
	var req calculateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: %v", err)
	}

	report, err := s.runner.Engine().Calculate(c.UserContext(), req.Expression)
	if err != nil {
		var se *types.SyntaxError
		if errors.As(err, &se) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    fiber.StatusBadRequest,
					"message": se.Error(),
					"status":  "INVALID_ARGUMENT",
					"details": se.ToValue(),
					"text":    render.SyntaxError(se),
				},
			})
		}
		return badRequest(c, "%v", err)
	}

	if c.Query("format") == "text" {
		return c.SendString(render.Report(report))
	}
	return c.JSON(fiber.Map{
		"title":     render.Title(report),
		"elapsedMs": float64(report.Elapsed) / float64(time.Millisecond),
		"timedOut":  report.TimedOut,
		"report":    runtime.ReportValue(report),
	})
}

type brainfuckRequest struct {
	Program string  `json:"program"`
	Input   *string `json:"input"`
}

func (s *Server) brainfuck(c *fiber.Ctx) error {
	var req brainfuckRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: %v", err)
	}

	res, err := s.runner.Engine().Brainfuck(c.UserContext(), req.Program, req.Input)
	if err != nil {
		return errorJSON(c, fiber.StatusGatewayTimeout, "DEADLINE_EXCEEDED", err.Error())
	}
	if res.Err != nil && types.IsTag(res.Err, types.TagBracketMismatchError) {
		return badRequest(c, "%v", res.Err)
	}

	if c.Query("format") == "text" {
		return c.SendString(render.Brainfuck(res))
	}
	return c.JSON(runtime.ResultValue(res))
}

func (s *Server) functions(c *fiber.Ctx) error {
	lib := s.runner.Engine().Library()
	return c.JSON(fiber.Map{
		"functions": lib.Functions(),
		"constants": lib.Constants(),
		"aliases":   lib.Aliases(),
	})
}

// --- Program handlers ---

type createWorkflowRequest struct {
	SourceContents string `json:"sourceContents"`
	Description    string `json:"description"`
}

func (s *Server) createWorkflow(c *fiber.Ctx) error {
	parent := buildParent(c)
	workflowID := c.Query("workflowId")
	if workflowID == "" {
		return badRequest(c, "workflowId query parameter is required")
	}
	if !validWorkflowID.MatchString(workflowID) {
		return badRequest(c, "invalid workflowId %q", workflowID)
	}

	var req createWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: %v", err)
	}
	if req.SourceContents == "" {
		return badRequest(c, "sourceContents is required")
	}

	prog, err := parser.Parse([]byte(req.SourceContents))
	if err != nil {
		return badRequest(c, "invalid program definition: %v", err)
	}

	wf, err := s.runner.Store().CreateWorkflow(parent, workflowID, req.SourceContents, req.Description, prog)
	if err != nil {
		return s.storeError(c, err)
	}

	// Returned directly rather than as a long-running operation.
	return c.Status(fiber.StatusOK).JSON(workflowToJSON(wf))
}

func (s *Server) getWorkflow(c *fiber.Ctx) error {
	wf, err := s.runner.Store().GetWorkflow(buildWorkflowName(c))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(workflowToJSON(wf))
}

func (s *Server) listWorkflows(c *fiber.Ctx) error {
	workflows := s.runner.Store().ListWorkflows(buildParent(c))

	items := make([]fiber.Map, len(workflows))
	for i, wf := range workflows {
		items[i] = workflowToJSON(wf)
	}
	return c.JSON(fiber.Map{"workflows": items})
}

func (s *Server) updateWorkflow(c *fiber.Ctx) error {
	name := buildWorkflowName(c)

	var req createWorkflowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: %v", err)
	}

	var (
		wf  *store.Workflow
		err error
	)
	if req.SourceContents != "" {
		prog, perr := parser.Parse([]byte(req.SourceContents))
		if perr != nil {
			return badRequest(c, "invalid program definition: %v", perr)
		}
		wf, err = s.runner.Store().UpdateWorkflow(name, req.SourceContents, req.Description, prog)
	} else {
		wf, err = s.runner.Store().UpdateWorkflow(name, "", req.Description, nil)
	}
	if err != nil {
		return s.storeError(c, err)
	}

	return c.JSON(fiber.Map{
		"name":     fmt.Sprintf("projects/-/locations/-/operations/update-%s", c.Params("workflow")),
		"done":     true,
		"response": workflowToJSON(wf),
	})
}

func (s *Server) deleteWorkflow(c *fiber.Ctx) error {
	if err := s.runner.Store().DeleteWorkflow(buildWorkflowName(c)); err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"name": fmt.Sprintf("projects/-/locations/-/operations/delete-%s", c.Params("workflow")),
		"done": true,
	})
}

// --- Execution handlers ---

type createExecutionRequest struct {
	Argument string `json:"argument"`
}

func (s *Server) createExecution(c *fiber.Ctx) error {
	var req createExecutionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return badRequest(c, "invalid request body: %v", err)
	}

	exec, err := s.runner.Start(buildWorkflowName(c), req.Argument)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(executionToJSON(exec))
}

func (s *Server) getExecution(c *fiber.Ctx) error {
	exec, err := s.runner.Store().GetExecution(buildExecutionName(c))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(executionToJSON(exec))
}

func (s *Server) listExecutions(c *fiber.Ctx) error {
	executions := s.runner.Store().ListExecutions(buildWorkflowName(c))

	items := make([]fiber.Map, len(executions))
	for i, exec := range executions {
		items[i] = executionToJSON(exec)
	}
	return c.JSON(fiber.Map{"executions": items})
}

func (s *Server) cancelExecution(c *fiber.Ctx) error {
	exec, err := s.runner.Cancel(buildExecutionName(c))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(executionToJSON(exec))
}

// --- Directory loading ---

var validWorkflowID = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,127}$`)

// WatchDir deploys every .yaml, .yml and .json program file in dir under
// projects/<project>/locations/<location>. The file name without its
// extension, lower-cased, becomes the program ID. Files that cannot be
// read or parsed are logged and skipped.
func (s *Server) WatchDir(ctx context.Context, dir, project, location string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading programs directory: %w", err)
	}

	parent := fmt.Sprintf("projects/%s/locations/%s", project, location)
	loaded := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		base := strings.TrimSuffix(name, ext)
		workflowID := strings.ToLower(base)
		log := s.log.With(zap.String("file", name), zap.String("id", workflowID))

		if workflowID != base {
			log.Warn("lowercased program ID")
		}
		if !validWorkflowID.MatchString(workflowID) {
			log.Warn("skipping file with invalid program ID")
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read program", zap.Error(err))
			continue
		}

		prog, err := parser.Parse(data)
		if err != nil {
			log.Warn("could not parse program", zap.Error(err))
			continue
		}

		if _, err := s.runner.Store().CreateWorkflow(parent, workflowID, string(data), "", prog); err != nil {
			log.Warn("could not deploy program", zap.Error(err))
			continue
		}
		loaded++
		log.Info("loaded program", zap.String("kind", string(prog.Kind)))
	}

	s.log.Info("programs loaded", zap.Int("count", loaded), zap.String("dir", dir))
	return loaded, nil
}

// --- Helpers ---

func buildParent(c *fiber.Ctx) string {
	return fmt.Sprintf("projects/%s/locations/%s", c.Params("project"), c.Params("location"))
}

func buildWorkflowName(c *fiber.Ctx) string {
	return fmt.Sprintf("%s/workflows/%s", buildParent(c), c.Params("workflow"))
}

func buildExecutionName(c *fiber.Ctx) string {
	return fmt.Sprintf("%s/executions/%s", buildWorkflowName(c), c.Params("execution"))
}

func workflowToJSON(wf *store.Workflow) fiber.Map {
	return fiber.Map{
		"name":           wf.Name,
		"description":    wf.Description,
		"kind":           wf.Kind,
		"state":          wf.State,
		"revisionId":     wf.RevisionID,
		"createTime":     wf.CreateTime.Format(time.RFC3339),
		"updateTime":     wf.UpdateTime.Format(time.RFC3339),
		"sourceContents": wf.SourceCode,
	}
}

func executionToJSON(exec *store.Execution) fiber.Map {
	result := fiber.Map{
		"name":               exec.Name,
		"state":              exec.State,
		"startTime":          exec.StartTime.Format(time.RFC3339),
		"workflowRevisionId": exec.WorkflowRevisionID,
	}

	if exec.Argument != "" {
		result["argument"] = exec.Argument
	}
	if exec.Result != "" {
		result["result"] = exec.Result
	}
	if exec.Error != nil {
		result["error"] = fiber.Map{
			"payload": exec.Error.Payload,
			"context": exec.Error.Context,
		}
	}
	if !exec.EndTime.IsZero() {
		result["endTime"] = exec.EndTime.Format(time.RFC3339)
	}
	return result
}
