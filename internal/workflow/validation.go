package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/contractpilot/orchestrator/internal/agents"
)

// ValidationIssue is one validation failure. Code is stable for metrics and
// tests, Message is for humans.
type ValidationIssue struct {
	Code    string
	Message string
}

// ValidationError aggregates every problem found in a definition so callers
// fix them in one pass instead of replaying registration per issue.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "workflow validation failed"
	case 1:
		return e.Issues[0].Message
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Issues), strings.Join(e.Messages(), "; "))
}

// Messages returns just the human-readable text for each issue.
func (e *ValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return msgs
}

// ToolLookup reports whether a tool name is registered. Validation uses it to
// reject task types referencing unknown tools; a nil lookup skips the check.
type ToolLookup func(name string) bool

type defChecker struct {
	issues     []ValidationIssue
	toolExists ToolLookup
}

func (c *defChecker) addf(code, format string, args ...any) {
	c.issues = append(c.issues, ValidationIssue{Code: code, Message: fmt.Sprintf(format, args...)})
}

// ValidateDefinition performs structural checks and returns a ValidationError
// when problems exist. Nothing is persisted on failure.
func ValidateDefinition(def *WorkflowDefinition, toolExists ToolLookup) error {
	if def == nil {
		return &ValidationError{Issues: []ValidationIssue{{Code: "definition_nil", Message: "workflow definition is nil"}}}
	}

	c := &defChecker{toolExists: toolExists}

	if strings.TrimSpace(def.WorkflowID) == "" {
		c.addf("workflow_id_missing", "workflow_id is required")
	}
	if len(def.Tasks) == 0 {
		c.addf("tasks_empty", "at least one task is required")
	}

	tasks := c.indexTasks(def)
	for _, t := range tasks {
		c.checkTask(t, tasks)
	}
	if cycle := findCycle(dependentsGraph(tasks)); cycle != "" {
		c.addf("graph_cycle", "cycle detected: %s", cycle)
	}

	if len(c.issues) == 0 {
		return nil
	}
	sort.Slice(c.issues, func(i, j int) bool {
		if c.issues[i].Code == c.issues[j].Code {
			return c.issues[i].Message < c.issues[j].Message
		}
		return c.issues[i].Code < c.issues[j].Code
	})
	return &ValidationError{Issues: c.issues}
}

// indexTasks maps task ids to specs, recording missing and duplicate ids.
func (c *defChecker) indexTasks(def *WorkflowDefinition) map[string]*TaskSpec {
	tasks := make(map[string]*TaskSpec, len(def.Tasks))
	for i := range def.Tasks {
		t := &def.Tasks[i]
		switch {
		case strings.TrimSpace(t.TaskID) == "":
			c.addf("task_id_missing", "task at index %d is missing a task_id", i)
		case tasks[t.TaskID] != nil:
			c.addf("task_id_duplicate", "duplicate task id '%s'", t.TaskID)
		default:
			tasks[t.TaskID] = t
		}
	}
	return tasks
}

func (c *defChecker) checkTask(t *TaskSpec, tasks map[string]*TaskSpec) {
	if !agents.ValidRole(t.AgentRole) {
		c.addf("agent_role_unknown", "unknown agent role '%s' at task '%s'", t.AgentRole, t.TaskID)
	}
	switch t.Priority {
	case "", PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
	default:
		c.addf("priority_unknown", "unknown priority '%s' at task '%s'", t.Priority, t.TaskID)
	}
	if t.TimeoutSeconds < 0 {
		c.addf("timeout_negative", "timeout_seconds cannot be negative at task '%s'", t.TaskID)
	}
	if t.MaxRetries != nil && *t.MaxRetries < 0 {
		c.addf("max_retries_negative", "max_retries cannot be negative at task '%s'", t.TaskID)
	}
	if t.TaskType != "" && c.toolExists != nil && !c.toolExists(t.TaskType) {
		c.addf("task_type_unknown", "unknown tool '%s' at task '%s'", t.TaskType, t.TaskID)
	}

	for _, dep := range t.Dependencies {
		switch {
		case dep == t.TaskID:
			c.addf("dependency_self", "task '%s' cannot depend on itself", t.TaskID)
		case tasks[dep] == nil:
			c.addf("dependency_unknown", "task '%s' depends on unknown task '%s'", t.TaskID, dep)
		}
	}
}

// dependentsGraph builds dependency -> dependents edges over valid references.
// Self-edges are left out; checkTask already reports them.
func dependentsGraph(tasks map[string]*TaskSpec) map[string][]string {
	g := make(map[string][]string, len(tasks))
	for id := range tasks {
		g[id] = nil
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep != t.TaskID && tasks[dep] != nil {
				g[dep] = append(g[dep], t.TaskID)
			}
		}
	}
	return g
}

const (
	colorWhite = iota // unvisited
	colorGrey         // on the current path
	colorBlack        // fully explored
)

// findCycle runs a three-color DFS and returns the first cycle found,
// rendered as "a -> b -> a", or "" when the graph is acyclic. Roots are
// visited in sorted order so the reported cycle is deterministic.
func findCycle(graph map[string][]string) string {
	color := make(map[string]int, len(graph))
	var path []string

	var walk func(string) string
	walk = func(node string) string {
		color[node] = colorGrey
		path = append(path, node)

		for _, next := range graph[node] {
			if color[next] == colorGrey {
				return renderCycle(path, next)
			}
			if color[next] == colorWhite {
				if cycle := walk(next); cycle != "" {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		color[node] = colorBlack
		return ""
	}

	roots := make([]string, 0, len(graph))
	for node := range graph {
		roots = append(roots, node)
	}
	sort.Strings(roots)

	for _, node := range roots {
		if color[node] == colorWhite {
			if cycle := walk(node); cycle != "" {
				return cycle
			}
		}
	}
	return ""
}

// renderCycle trims the DFS path to the loop that closes at start.
func renderCycle(path []string, start string) string {
	for i, node := range path {
		if node == start {
			path = path[i:]
			break
		}
	}
	return strings.Join(append(append([]string{}, path...), start), " -> ")
}
