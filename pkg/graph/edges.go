package graph

// Edge is a directed connection from Source into Target.
type Edge struct {
	Source EntityRef
	Target EntityRef
}

// IntoItem reports whether the edge feeds an item (node→item). All other
// edges feed a node.
func (e Edge) IntoItem() bool {
	return e.Target.Kind == EntityItem
}

type edgeKey struct {
	target, source string
}

// EdgeSet holds every connection keyed by (target, source). Sources of a
// target keep insertion order.
type EdgeSet struct {
	edges []Edge
	index map[edgeKey]struct{}
}

// NewEdgeSet returns an empty edge set.
func NewEdgeSet() *EdgeSet {
	return &EdgeSet{index: make(map[edgeKey]struct{})}
}

// Connect adds source→target. It returns false if the edge already exists.
func (s *EdgeSet) Connect(target, source EntityRef) bool {
	k := edgeKey{target.ID, source.ID}
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = struct{}{}
	s.edges = append(s.edges, Edge{Source: source, Target: target})
	return true
}

// Disconnect removes source→target. It returns false if there was no
// such edge.
func (s *EdgeSet) Disconnect(targetID, sourceID string) bool {
	k := edgeKey{targetID, sourceID}
	if _, ok := s.index[k]; !ok {
		return false
	}
	delete(s.index, k)
	for i, e := range s.edges {
		if e.Target.ID == targetID && e.Source.ID == sourceID {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether source→target exists.
func (s *EdgeSet) Has(targetID, sourceID string) bool {
	_, ok := s.index[edgeKey{targetID, sourceID}]
	return ok
}

// SourcesOf returns the ids feeding target, in connection order.
func (s *EdgeSet) SourcesOf(targetID string) []string {
	var out []string
	for _, e := range s.edges {
		if e.Target.ID == targetID {
			out = append(out, e.Source.ID)
		}
	}
	return out
}

// CountInto returns the number of sources feeding target.
func (s *EdgeSet) CountInto(targetID string) int {
	n := 0
	for _, e := range s.edges {
		if e.Target.ID == targetID {
			n++
		}
	}
	return n
}

// RemoveEntity drops every edge that has id as source or target and
// returns how many were removed.
func (s *EdgeSet) RemoveEntity(id string) int {
	kept := s.edges[:0]
	removed := 0
	for _, e := range s.edges {
		if e.Source.ID == id || e.Target.ID == id {
			delete(s.index, edgeKey{e.Target.ID, e.Source.ID})
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	return removed
}

// All returns a copy of every edge in insertion order.
func (s *EdgeSet) All() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Len returns the number of edges.
func (s *EdgeSet) Len() int { return len(s.edges) }

// NodeConnections projects the set into the persisted node table:
// target node id → ordered source ids.
func (s *EdgeSet) NodeConnections() map[string][]string {
	out := make(map[string][]string)
	for _, e := range s.edges {
		if !e.IntoItem() {
			out[e.Target.ID] = append(out[e.Target.ID], e.Source.ID)
		}
	}
	return out
}

// ItemConnections projects the set into the persisted item table:
// item id → ordered node ids feeding it.
func (s *EdgeSet) ItemConnections() map[string][]string {
	out := make(map[string][]string)
	for _, e := range s.edges {
		if e.IntoItem() {
			out[e.Target.ID] = append(out[e.Target.ID], e.Source.ID)
		}
	}
	return out
}
