package backlog

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NielsdaWheelz/conductor/internal/errors"
)

// idPattern validates task IDs. IDs appear in branch names, so the character
// set is restricted to git-ref-safe characters.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// taskDecl is the YAML shape of a single backlog entry.
type taskDecl struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	DependsOn   []string `yaml:"depends_on"`
	Category    string   `yaml:"category"`
}

// Graph is the validated task dependency graph. It is the single source of
// truth for task readiness; it never invokes git or checks.
type Graph struct {
	tasks map[string]*Task
	order []string // declaration order
}

// LoadFile reads and validates a backlog file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewWithDetails(
				errors.EInvalidBacklog,
				"backlog file not found",
				map[string]string{"path": path},
			)
		}
		return nil, errors.Wrap(errors.EInvalidBacklog, "failed to read backlog", err)
	}
	return Load(data)
}

// Load parses task declarations and validates the dependency graph.
//
// The whole input is rejected on the first structural problem: duplicate or
// invalid IDs, unknown dependency references (E_INVALID_BACKLOG), or a
// dependency cycle (E_BACKLOG_CYCLE, with the offending cycle reported as an
// ordered ID sequence). Malformed input never yields a partial graph.
func Load(data []byte) (*Graph, error) {
	var decls []taskDecl
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, errors.Wrap(errors.EInvalidBacklog, "backlog is not valid YAML", err)
	}
	if len(decls) == 0 {
		return nil, errors.New(errors.EInvalidBacklog, "backlog is empty")
	}

	g := &Graph{tasks: make(map[string]*Task, len(decls))}

	for i, d := range decls {
		if d.ID == "" {
			return nil, errors.NewWithDetails(
				errors.EInvalidBacklog,
				fmt.Sprintf("task at index %d has no id", i),
				nil,
			)
		}
		if !idPattern.MatchString(d.ID) {
			return nil, errors.NewWithDetails(
				errors.EInvalidBacklog,
				fmt.Sprintf("task id %q contains invalid characters", d.ID),
				map[string]string{"task_id": d.ID},
			)
		}
		if _, exists := g.tasks[d.ID]; exists {
			return nil, errors.NewWithDetails(
				errors.EInvalidBacklog,
				fmt.Sprintf("duplicate task id %q", d.ID),
				map[string]string{"task_id": d.ID},
			)
		}

		category := CategoryRun
		switch d.Category {
		case "", string(CategoryRun):
		case string(CategoryBootstrap):
			category = CategoryBootstrap
		default:
			return nil, errors.NewWithDetails(
				errors.EInvalidBacklog,
				fmt.Sprintf("task %q has unknown category %q", d.ID, d.Category),
				map[string]string{"task_id": d.ID},
			)
		}

		g.tasks[d.ID] = &Task{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			DependsOn:   append([]string(nil), d.DependsOn...),
			Category:    category,
			State:       StateQueued,
			index:       i,
		}
		g.order = append(g.order, d.ID)
	}

	// Every edge target must exist.
	for _, id := range g.order {
		for _, dep := range g.tasks[id].DependsOn {
			if _, ok := g.tasks[dep]; !ok {
				return nil, errors.NewWithDetails(
					errors.EInvalidBacklog,
					fmt.Sprintf("task %q depends on unknown task %q", id, dep),
					map[string]string{"task_id": id, "path": dep},
				)
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, errors.NewWithDetails(
			errors.EBacklogCycle,
			"backlog dependency relation contains a cycle",
			map[string]string{"cycle": strings.Join(cycle, " -> ")},
		)
	}

	return g, nil
}

// findCycle runs iterative three-color DFS over the dependency edges.
// Returns the cycle as an ordered sequence of task IDs (first repeated at the
// end), or nil if the graph is acyclic. An explicit stack avoids unbounded
// recursion on deep backlogs.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.tasks))

	type frame struct {
		id   string
		next int // next dependency index to explore
	}

	for _, start := range g.order {
		if color[start] != white {
			continue
		}

		stack := []frame{{id: start}}
		color[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			deps := g.tasks[top.id].DependsOn

			if top.next >= len(deps) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}

			dep := deps[top.next]
			top.next++

			switch color[dep] {
			case white:
				color[dep] = gray
				stack = append(stack, frame{id: dep})
			case gray:
				// Found a back edge; slice the current path from dep onward.
				var cycle []string
				for i := range stack {
					if cycle != nil || stack[i].id == dep {
						cycle = append(cycle, stack[i].id)
					}
				}
				return append(cycle, dep)
			}
		}
	}
	return nil
}

// Get returns the task with the given ID.
func (g *Graph) Get(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// Ready returns the IDs of every Queued task of the given category whose
// dependencies are all in the terminal success state. Order is declaration
// order, so scheduling is reproducible for identical input.
func (g *Graph) Ready(category Category) []string {
	var ready []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Category != category || t.State != StateQueued {
			continue
		}
		if g.depsSatisfied(t) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *Graph) depsSatisfied(t *Task) bool {
	for _, dep := range t.DependsOn {
		if !g.tasks[dep].State.Success() {
			return false
		}
	}
	return true
}

// SetState records an in-progress lifecycle state for a task.
func (g *Graph) SetState(id string, state State) error {
	t, ok := g.tasks[id]
	if !ok {
		return errors.NewWithDetails(errors.ETaskNotFound, fmt.Sprintf("unknown task %q", id), nil)
	}
	t.State = state
	return nil
}

// MarkOutcome transitions a task to a terminal state. It has no side effect
// on dependents beyond making them newly eligible in Ready.
func (g *Graph) MarkOutcome(id string, outcome State) error {
	if !outcome.Terminal() {
		return errors.New(errors.EInternal, fmt.Sprintf("MarkOutcome called with non-terminal state %q", outcome))
	}
	return g.SetState(id, outcome)
}

// Remaining returns the IDs of non-terminal tasks of the given category, in
// declaration order.
func (g *Graph) Remaining(category Category) []string {
	var out []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Category == category && !t.State.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// Blocked returns the IDs of non-terminal tasks of the given category that
// can never become ready because some dependency (transitively) terminated
// without success.
func (g *Graph) Blocked(category Category) []string {
	var out []string
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Category != category || t.State.Terminal() {
			continue
		}
		if g.permanentlyBlocked(id) {
			out = append(out, id)
		}
	}
	return out
}

// permanentlyBlocked walks the dependency closure with an explicit stack,
// like findCycle, so deep backlogs cannot exhaust the goroutine stack.
func (g *Graph) permanentlyBlocked(id string) bool {
	seen := map[string]bool{id: true}
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.tasks[cur].DependsOn {
			dt := g.tasks[dep]
			if dt.State.Terminal() && !dt.State.Success() {
				return true
			}
			if !seen[dep] {
				seen[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}
