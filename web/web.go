// Package web provides the embedded web UI: calculator and Brainfuck
// forms plus browsing of saved programs and their executions.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/calcd/pkg/render"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	runner   *runtime.Runner
	project  string
	location string
	funcMap  template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Project   string
	Location  string
	Data      any
}

// New creates a new web UI handler.
func New(runner *runtime.Runner, project, location string) *Handler {
	return &Handler{
		runner:   runner,
		project:  project,
		location: location,
		funcMap: template.FuncMap{
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"duration":   duration,
			"stateClass": stateClass,
			"stateIcon":  stateIcon,
			"truncate":   truncate,
			"countLines": countLines,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data any) error {
	// Each page is parsed with the layout on its own so that the
	// "content" blocks of different pages do not collide.
	tmpl, err := template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("template error: %v", err))
	}

	pd := pageData{
		NavActive: navActive,
		Project:   h.project,
		Location:  h.location,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/calculate", h.calculatorForm)
	app.Post("/ui/calculate", h.calculate)
	app.Get("/ui/brainfuck", h.brainfuckForm)
	app.Post("/ui/brainfuck", h.brainfuck)
	app.Get("/ui/functions", h.functions)
	app.Get("/ui/workflows", h.workflowList)
	app.Get("/ui/workflows/:id", h.workflowDetail)
	app.Get("/ui/executions", h.executionList)
	app.Get("/ui/executions/:workflow/:execution", h.executionDetail)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page data types ---

type dashboardContent struct {
	Workflows      []*store.Workflow
	RecentExecs    []*executionView
	ActiveCount    int
	SucceededCount int
	FailedCount    int
	CancelledCount int
}

type executionView struct {
	*store.Execution
	WorkflowID string
}

type workflowView struct {
	*store.Workflow
	ExecutionCount int
	ActiveCount    int
}

type workflowDetailContent struct {
	Workflow   *store.Workflow
	Executions []*executionView
}

type executionListContent struct {
	Executions []*executionView
}

type calculatorContent struct {
	Expression string
	Output     string
	Failed     bool
}

type brainfuckContent struct {
	Program string
	Input   string
	Output  string
	Failed  bool
}

type functionsContent struct {
	Functions []string
	Constants []string
	Aliases   []string
}

type notFoundContent struct {
	Message string
}

// --- Evaluation pages ---

func (h *Handler) calculatorForm(c *fiber.Ctx) error {
	return h.render(c, "calculate.html", "calculate", calculatorContent{})
}

func (h *Handler) calculate(c *fiber.Ctx) error {
	content := calculatorContent{Expression: c.FormValue("expression")}

	report, err := h.runner.Engine().Calculate(c.UserContext(), content.Expression)
	if err != nil {
		content.Output = render.Error(err)
		content.Failed = true
	} else {
		content.Output = render.Report(report)
		content.Failed = report.HasErrors()
	}
	return h.render(c, "calculate.html", "calculate", content)
}

func (h *Handler) brainfuckForm(c *fiber.Ctx) error {
	return h.render(c, "brainfuck.html", "brainfuck", brainfuckContent{})
}

func (h *Handler) brainfuck(c *fiber.Ctx) error {
	content := brainfuckContent{
		Program: c.FormValue("program"),
		Input:   c.FormValue("input"),
	}

	var input *string
	if content.Input != "" {
		input = &content.Input
	}
	res, err := h.runner.Engine().Brainfuck(c.UserContext(), content.Program, input)
	if err != nil {
		content.Output = render.Error(err)
		content.Failed = true
	} else {
		content.Output = render.Brainfuck(res)
		content.Failed = res.Err != nil
	}
	return h.render(c, "brainfuck.html", "brainfuck", content)
}

func (h *Handler) functions(c *fiber.Ctx) error {
	lib := h.runner.Engine().Library()
	var aliases []string
	for alias, target := range lib.Aliases() {
		aliases = append(aliases, alias+" → "+target)
	}
	slices.Sort(aliases)
	return h.render(c, "functions.html", "functions", functionsContent{
		Functions: lib.Functions(),
		Constants: lib.Constants(),
		Aliases:   aliases,
	})
}

// --- Program pages ---

func (h *Handler) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", h.project, h.location)
}

// allExecutions returns every execution under the handler's parent, newest first.
func (h *Handler) allExecutions() []*executionView {
	var views []*executionView
	for _, wf := range h.runner.Store().ListWorkflows(h.parent()) {
		for _, e := range h.runner.Store().ListExecutions(wf.Name) {
			views = append(views, &executionView{Execution: e, WorkflowID: wf.ID()})
		}
	}
	slices.SortFunc(views, func(a, b *executionView) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return views
}

func (h *Handler) dashboard(c *fiber.Ctx) error {
	workflows := h.runner.Store().ListWorkflows(h.parent())
	slices.SortFunc(workflows, func(a, b *store.Workflow) int {
		return b.UpdateTime.Compare(a.UpdateTime)
	})

	content := dashboardContent{Workflows: workflows}
	all := h.allExecutions()
	for _, e := range all {
		switch e.State {
		case store.ExecutionActive:
			content.ActiveCount++
		case store.ExecutionSucceeded:
			content.SucceededCount++
		case store.ExecutionFailed:
			content.FailedCount++
		case store.ExecutionCancelled:
			content.CancelledCount++
		}
	}
	content.RecentExecs = all[:min(len(all), 10)]

	return h.render(c, "dashboard.html", "dashboard", content)
}

func (h *Handler) workflowList(c *fiber.Ctx) error {
	var views []*workflowView
	for _, wf := range h.runner.Store().ListWorkflows(h.parent()) {
		execs := h.runner.Store().ListExecutions(wf.Name)
		active := 0
		for _, e := range execs {
			if e.State == store.ExecutionActive {
				active++
			}
		}
		views = append(views, &workflowView{Workflow: wf, ExecutionCount: len(execs), ActiveCount: active})
	}
	return h.render(c, "workflow_list.html", "workflows", views)
}

func (h *Handler) workflowDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	wf, err := h.runner.Store().GetWorkflow(h.parent() + "/workflows/" + id)
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Program '%s' not found", id))
	}

	var views []*executionView
	for _, e := range h.runner.Store().ListExecutions(wf.Name) {
		views = append(views, &executionView{Execution: e, WorkflowID: id})
	}
	return h.render(c, "workflow_detail.html", "workflows", workflowDetailContent{
		Workflow:   wf,
		Executions: views,
	})
}

func (h *Handler) executionList(c *fiber.Ctx) error {
	return h.render(c, "execution_list.html", "executions", executionListContent{
		Executions: h.allExecutions(),
	})
}

func (h *Handler) executionDetail(c *fiber.Ctx) error {
	wfID := c.Params("workflow")
	execID := c.Params("execution")
	name := fmt.Sprintf("%s/workflows/%s/executions/%s", h.parent(), wfID, execID)

	exec, err := h.runner.Store().GetExecution(name)
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Execution '%s' not found", execID))
	}
	return h.render(c, "execution_detail.html", "executions", &executionView{Execution: exec, WorkflowID: wfID})
}

func (h *Handler) notFound(c *fiber.Ctx, msg string) error {
	c.Status(fiber.StatusNotFound)
	return h.render(c, "not_found.html", "", notFoundContent{Message: msg})
}

// --- Template helpers ---

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	default:
		return plural(int(d.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return formatDuration(time.Since(start)) + " (running)"
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func stateClass(state store.ExecutionState) string {
	switch state {
	case store.ExecutionActive:
		return "state-active"
	case store.ExecutionSucceeded:
		return "state-succeeded"
	case store.ExecutionFailed:
		return "state-failed"
	case store.ExecutionCancelled:
		return "state-cancelled"
	}
	return ""
}

func stateIcon(state store.ExecutionState) template.HTML {
	switch state {
	case store.ExecutionActive:
		return "&#9654;"
	case store.ExecutionSucceeded:
		return "&#10003;"
	case store.ExecutionFailed:
		return "&#10007;"
	case store.ExecutionCancelled:
		return "&#9632;"
	}
	return "&#8226;"
}

// truncate shortens s to at most n characters.
func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
