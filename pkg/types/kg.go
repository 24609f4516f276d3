package types

// KGNode is a typed node in the knowledge-graph index.
type KGNode struct {
	ID      string
	Type    string
	Label   string
	Payload map[string]any
}

// KGEdge is a typed, weighted edge. Ingest must reject any edge whose Src or
// Dst does not name an existing node (§4.L3 invariant: no dangling edges).
type KGEdge struct {
	Src     string
	Dst     string
	Type    string
	Weight  float64
	Payload map[string]any
}

// Path is the result of a bounded find-path query: an ordered list of edges
// connecting Src to Dst, or nil if no path within MaxHops was found.
type Path struct {
	Edges      []KGEdge
	TotalHops  int
	TotalWeight float64
}
