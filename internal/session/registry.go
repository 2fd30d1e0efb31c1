package session

// #region registry
// Registry assigns stable integer ids to chunk contents. Ids start at 1,
// increase monotonically and never change once assigned.
type Registry struct {
	ids  map[string]int
	next int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]int), next: 1}
}

// Register returns the id for content, assigning the next id on first sight.
func (r *Registry) Register(content string) int {
	if id, ok := r.ids[content]; ok {
		return id
	}
	id := r.next
	r.ids[content] = id
	r.next++
	return id
}

// ID looks up content without assigning.
func (r *Registry) ID(content string) (int, bool) {
	id, ok := r.ids[content]
	return id, ok
}

// Len is the number of distinct contents seen.
func (r *Registry) Len() int {
	return len(r.ids)
}

// #endregion registry
