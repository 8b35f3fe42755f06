package core

// State is the per-cycle composite context assembled from provider
// contributions. It is immutable once composition completes: handlers get
// their own clone and the composer never touches it again. Lifetime is one
// processing cycle; it is never persisted.
type State struct {
	// Text is the ordered concatenation of provider text blocks.
	Text string
	// Values holds named scalar/structured values, last writer wins.
	Values map[string]any
	// Data holds raw provider payloads, last writer wins.
	Data map[string]any
}

// NewState returns an empty state with allocated maps.
func NewState() *State {
	return &State{
		Values: map[string]any{},
		Data:   map[string]any{},
	}
}

// Clone returns a copy whose maps can be read or modified without
// affecting the original. Values are copied shallowly.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	out := &State{
		Text:   s.Text,
		Values: make(map[string]any, len(s.Values)),
		Data:   make(map[string]any, len(s.Data)),
	}
	for k, v := range s.Values {
		out.Values[k] = v
	}
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}

// Value returns a named value if present.
func (s *State) Value(name string) (any, bool) {
	if s == nil || s.Values == nil {
		return nil, false
	}
	v, ok := s.Values[name]
	return v, ok
}

// StringValue returns a named value as a string, or "" when absent or not
// a string.
func (s *State) StringValue(name string) string {
	v, ok := s.Value(name)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}
