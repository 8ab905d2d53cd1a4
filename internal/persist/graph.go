package persist

import (
	"github.com/roach88/uow/internal/ir"
	"github.com/roach88/uow/internal/key"
	"github.com/roach88/uow/internal/schema"
	"github.com/roach88/uow/internal/state"
)

// graph is an arena snapshot of reference edges between states. Edge from
// -> to means from's reference field holds to's key.
type graph struct {
	nodes []*state.EntityState
	edges []edge
	in    [][]int
	out   [][]int
}

type edge struct {
	from, to int
	field    *schema.FieldInfo
	broken   bool
}

func (e edge) nullable() bool { return e.field.Nullable }

// participates reports whether instances of t can have reference edges.
func participates(t *schema.TypeInfo) bool {
	for _, a := range t.OwnerAssociations() {
		if a.IsReference() {
			return true
		}
	}
	for _, a := range t.TargetAssociations() {
		if a.IsReference() {
			return true
		}
	}
	return false
}

// buildGraph splits states into graph nodes and bypassed states, then links
// nodes by the reference values read returns. A self-reference through a
// field declared on the hierarchy root is not an edge.
func buildGraph(states []*state.EntityState, read func(*state.EntityState, *schema.FieldInfo) ir.Tuple) (*graph, []*state.EntityState) {
	g := &graph{}
	var bypassed []*state.EntityState
	index := key.NewMap[int]()
	for _, s := range states {
		if !participates(s.Type()) {
			bypassed = append(bypassed, s)
			continue
		}
		index.Set(s.Key(), len(g.nodes))
		g.nodes = append(g.nodes, s)
	}
	g.in = make([][]int, len(g.nodes))
	g.out = make([][]int, len(g.nodes))

	for i, s := range g.nodes {
		for _, a := range s.Type().OwnerAssociations() {
			if !a.IsReference() {
				continue
			}
			values := read(s, a.OwnerField)
			if values.HasNull() {
				continue
			}
			_, j, ok := index.Lookup(a.TargetType.Hierarchy, values)
			if !ok {
				continue
			}
			if i == j && a.OwnerField.DeclaringType.IsRoot() {
				continue
			}
			e := len(g.edges)
			g.edges = append(g.edges, edge{from: i, to: j, field: a.OwnerField})
			g.out[i] = append(g.out[i], e)
			g.in[j] = append(g.in[j], e)
		}
	}
	return g, bypassed
}

// sort orders nodes so that every node comes before the nodes it
// references, breaking cycles as needed. It returns node indexes in that
// referencer-first order and the edges it broke, in breaking order.
// forced counts broken edges that were not nullable.
func (g *graph) sort() (order []int, broken []int, forced int) {
	removed := make([]bool, len(g.nodes))
	degree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		degree[e.to]++
	}
	var ready []int
	for i := range g.nodes {
		if degree[i] == 0 {
			ready = append(ready, i)
		}
	}

	for {
		for len(ready) > 0 {
			n := ready[0]
			ready = ready[1:]
			removed[n] = true
			order = append(order, n)
			for _, ei := range g.out[n] {
				e := g.edges[ei]
				if e.broken {
					continue
				}
				degree[e.to]--
				if degree[e.to] == 0 && !removed[e.to] {
					ready = append(ready, e.to)
				}
			}
		}
		if len(order) == len(g.nodes) {
			return order, broken, forced
		}

		ei, nullable := g.cycleEdge(removed)
		g.edges[ei].broken = true
		broken = append(broken, ei)
		if !nullable {
			forced++
		}
		to := g.edges[ei].to
		degree[to]--
		if degree[to] == 0 {
			ready = append(ready, to)
		}
	}
}

// cycleEdge finds a cycle among the remaining nodes and picks the edge to
// break: the first nullable edge on the cycle, otherwise its first edge.
// Every remaining node has a live incoming edge from another remaining
// node, so walking incoming edges backwards must revisit a node.
func (g *graph) cycleEdge(removed []bool) (int, bool) {
	start := 0
	for removed[start] {
		start++
	}
	pos := make(map[int]int)
	var walk []int
	cur := start
	for {
		pos[cur] = len(walk)
		ei := g.liveIncoming(cur, removed)
		walk = append(walk, ei)
		cur = g.edges[ei].from
		if p, seen := pos[cur]; seen {
			walk = walk[p:]
			break
		}
	}
	for _, ei := range walk {
		if g.edges[ei].nullable() {
			return ei, true
		}
	}
	return walk[0], false
}

func (g *graph) liveIncoming(n int, removed []bool) int {
	for _, ei := range g.in[n] {
		e := g.edges[ei]
		if !e.broken && !removed[e.from] {
			return ei
		}
	}
	panic("persist: remaining node without a live incoming edge")
}
