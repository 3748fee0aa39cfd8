package runner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/simkernel/internal/tabular"
)

// Getter returns the current value of a published variable.
type Getter func() any

// Variables is one simulation's registry of published values, keyed by
// case-insensitive dotted names such as "Weather.Rain".
type Variables struct {
	mu      sync.RWMutex
	getters map[string]Getter
	names   map[string]string
}

// NewVariables creates an empty registry.
func NewVariables() *Variables {
	return &Variables{
		getters: make(map[string]Getter),
		names:   make(map[string]string),
	}
}

// Publish registers g under name. Publishing a name twice is an error.
func (v *Variables) Publish(name string, g Getter) error {
	if name == "" || g == nil {
		return fmt.Errorf("publish variable %q: name and getter required", name)
	}
	key := tabular.FoldName(name)

	v.mu.Lock()
	defer v.mu.Unlock()
	if existing, ok := v.names[key]; ok {
		return fmt.Errorf("publish variable %q: already published as %q", name, existing)
	}
	v.getters[key] = g
	v.names[key] = name
	return nil
}

// Get returns the current value of name.
func (v *Variables) Get(name string) (any, bool) {
	v.mu.RLock()
	g, ok := v.getters[tabular.FoldName(name)]
	v.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return g(), true
}

// Float returns name as a float64. Integer values are converted.
func (v *Variables) Float(name string) (float64, error) {
	val, ok := v.Get(name)
	if !ok {
		return 0, fmt.Errorf("variable %q not published", name)
	}
	switch x := val.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("variable %q is %T, not numeric", name, val)
	}
}

// Names returns the published names as spelled at publication, sorted.
func (v *Variables) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.names))
	for _, n := range v.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
