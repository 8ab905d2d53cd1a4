package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/uow/internal/schema"
)

// CycleWarning reports a reference cycle between hierarchies.
//
// Cycles are warnings, not errors: the sorting action generator breaks them
// at flush time by inserting one side with a null reference and repairing
// it with a compensating update. A cycle none of whose references is
// nullable cannot be broken that way and is marked Unresolvable.
type CycleWarning struct {
	Path         []string `json:"path"`   // ["Order", "Invoice", "Order"]
	Fields       []string `json:"fields"` // reference fields forming the cycle
	Message      string   `json:"message"`
	Level        string   `json:"level"` // "warning" or "error"
	Unresolvable bool     `json:"unresolvable,omitempty"`
}

// AnalyzeCycles finds reference cycles between hierarchies of m.
//
// The algorithm:
//  1. Build a hierarchy graph with one edge per master reference
//     association, owner -> target. A self-reference declared on the
//     hierarchy root is never an ordering dependency and is skipped.
//  2. Use Tarjan's algorithm to find strongly connected components.
//  3. Report each SCC with size > 1 or a self-loop.
func AnalyzeCycles(m *schema.Model) []CycleWarning {
	graph := buildReferenceGraph(m)
	if len(graph.nodes) == 0 {
		return []CycleWarning{}
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

type refEdge struct {
	to    string
	field *schema.FieldInfo
}

// referenceGraph maps a hierarchy name to its outgoing reference edges.
// nodes keeps model order so results are deterministic.
type referenceGraph struct {
	nodes []string
	out   map[string][]refEdge
}

func buildReferenceGraph(m *schema.Model) *referenceGraph {
	g := &referenceGraph{out: make(map[string][]refEdge)}
	for _, h := range m.Hierarchies() {
		g.nodes = append(g.nodes, h.Name())
		g.out[h.Name()] = []refEdge{}
	}
	for _, a := range m.Associations() {
		if !a.IsReference() || !a.Master {
			continue
		}
		from, to := a.OwnerType.Hierarchy.Name(), a.TargetType.Hierarchy.Name()
		if from == to && a.OwnerField.DeclaringType.IsRoot() {
			continue
		}
		g.out[from] = append(g.out[from], refEdge{to: to, field: a.OwnerField})
	}
	return g
}

func hasSelfLoop(node string, g *referenceGraph) bool {
	for _, e := range g.out[node] {
		if e.to == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(g *referenceGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.out[v] {
			w := e.to
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, g *referenceGraph) CycleWarning {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	// A cycle can be broken if any reference inside the SCC is nullable.
	var fields []string
	breakable := false
	for _, n := range scc {
		for _, e := range g.out[n] {
			if !members[e.to] {
				continue
			}
			fields = append(fields, e.field.String())
			if e.field.Nullable {
				breakable = true
			}
		}
	}

	var path []string
	if len(scc) == 1 {
		path = []string{scc[0], scc[0]}
	} else {
		path = reconstructCyclePath(scc, g)
	}

	w := CycleWarning{
		Path:   path,
		Fields: fields,
		Level:  "warning",
	}
	pathStr := strings.Join(path, " → ")
	if breakable {
		w.Message = fmt.Sprintf("Reference cycle detected: %s", pathStr)
	} else {
		w.Level = "error"
		w.Unresolvable = true
		w.Message = fmt.Sprintf("Reference cycle with no nullable reference: %s", pathStr)
	}
	return w
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at the SCC member that comes first in model order,
// follow edges to other SCC members, continue until we return to start.
func reconstructCyclePath(scc []string, g *referenceGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	for _, n := range g.nodes {
		if sccSet[n] {
			start = n
			break
		}
	}
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, e := range g.out[current] {
			if sccSet[e.to] && (!visited[e.to] || e.to == start) {
				next = e.to
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}
	return path
}
