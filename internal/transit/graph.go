// Package transit builds the station graph and computes shortest journeys
// with line transfers.
package transit

import (
	"container/heap"
	"math"
)

// Edge is a directed connection between two stations on a line.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
	LineID string  `json:"lineId"`
}

// Graph is a weighted directed adjacency list. It is built for a single
// request and is not safe for concurrent mutation.
type Graph struct {
	adj map[string][]Edge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{adj: make(map[string][]Edge)}
}

// AddVertex registers a station with no edges.
func (g *Graph) AddVertex(id string) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = nil
	}
}

// AddEdge inserts a directed edge, creating both vertices if needed.
// Reverse edges are never inferred.
func (g *Graph) AddEdge(from, to string, weight float64, lineID string) {
	g.AddVertex(to)
	g.adj[from] = append(g.adj[from], Edge{From: from, To: to, Weight: weight, LineID: lineID})
}

// HasVertex reports whether id is present.
func (g *Graph) HasVertex(id string) bool {
	_, ok := g.adj[id]
	return ok
}

// Neighbors returns the outgoing edges of id in insertion order.
func (g *Graph) Neighbors(id string) []Edge {
	return g.adj[id]
}

// Len returns the number of vertices.
func (g *Graph) Len() int {
	return len(g.adj)
}

// Path is the result of a shortest-path search.
type Path struct {
	Stations []string
	Weight   float64
	Edges    []Edge
}

// ShortestPath runs Dijkstra from start to end and reports false when either
// vertex is missing or end is unreachable. Among equal-weight paths the one
// returned depends on heap order and is not guaranteed stable.
func (g *Graph) ShortestPath(start, end string) (Path, bool) {
	if !g.HasVertex(start) || !g.HasVertex(end) {
		return Path{}, false
	}

	dist := make(map[string]float64, len(g.adj))
	prev := make(map[string]Edge, len(g.adj))
	done := make(map[string]bool, len(g.adj))
	for v := range g.adj {
		dist[v] = math.Inf(1)
	}
	dist[start] = 0

	pq := &frontier{{id: start, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		if done[cur.id] {
			continue
		}
		done[cur.id] = true
		if cur.id == end {
			break
		}
		for _, e := range g.adj[cur.id] {
			if done[e.To] {
				continue
			}
			if d := cur.dist + e.Weight; d < dist[e.To] {
				dist[e.To] = d
				prev[e.To] = e
				heap.Push(pq, item{id: e.To, dist: d})
			}
		}
	}

	if math.IsInf(dist[end], 1) {
		return Path{}, false
	}

	var edges []Edge
	for v := end; v != start; {
		e := prev[v]
		edges = append(edges, e)
		v = e.From
	}
	stations := make([]string, 0, len(edges)+1)
	stations = append(stations, start)
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	for _, e := range edges {
		stations = append(stations, e.To)
	}

	return Path{Stations: stations, Weight: dist[end], Edges: edges}, true
}

type item struct {
	id   string
	dist float64
}

// frontier is a binary min-heap keyed on tentative distance. Stale entries
// are skipped on pop instead of being decreased in place.
type frontier []item

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].dist < f[j].dist }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(item)) }
func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	it := old[n-1]
	*f = old[:n-1]
	return it
}
