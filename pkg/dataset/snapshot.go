package dataset

import "fmt"

// orderedMap is a string-keyed map that remembers insertion order.
type orderedMap[V any] struct {
	keys   []string
	values map[string]V
}

func (m *orderedMap[V]) set(key string, v V) {
	if m.values == nil {
		m.values = make(map[string]V)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m orderedMap[V]) get(key string) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m orderedMap[V]) ordered() []string {
	return append([]string(nil), m.keys...)
}

// Component maps light-source names to dataset instances, in backend order.
type Component struct {
	lights orderedMap[Instance]
}

// Set adds or replaces the instance for a light source. New lights are
// appended after existing ones.
func (c *Component) Set(light string, in Instance) {
	c.lights.set(light, in)
}

// Lights returns the light-source names in order.
func (c Component) Lights() []string {
	return c.lights.ordered()
}

// Len returns the number of light sources.
func (c Component) Len() int {
	return len(c.lights.keys)
}

// Light returns the instance for a light source or an ErrNotFound error.
func (c Component) Light(name string) (Instance, error) {
	in, ok := c.lights.get(name)
	if !ok {
		return Instance{}, fmt.Errorf("light %q: %w", name, ErrNotFound)
	}
	return in, nil
}

// Has reports whether the light source exists.
func (c Component) Has(name string) bool {
	_, ok := c.lights.get(name)
	return ok
}

// Ready reports whether every light source of the component is ready. A
// component without light sources is never ready.
func (c Component) Ready() bool {
	if c.Len() == 0 {
		return false
	}
	for _, name := range c.lights.keys {
		if !c.lights.values[name].Ready {
			return false
		}
	}
	return true
}

// PanelInfo holds the Train/Val totals across a whole export snapshot.
type PanelInfo struct {
	TrainPass int
	TrainNG   int
	ValPass   int
	ValNG     int
}

// Convertible reports whether all four totals are strictly positive.
func (p PanelInfo) Convertible() bool {
	return p.TrainPass > 0 && p.TrainNG > 0 && p.ValPass > 0 && p.ValNG > 0
}

// Count returns the total for one of the four Train/Val buckets; Golden and
// Delete are not tracked and report 0.
func (p PanelInfo) Count(b Bucket) int {
	switch b {
	case TrainPass:
		return p.TrainPass
	case TrainNG:
		return p.TrainNG
	case ValPass:
		return p.ValPass
	case ValNG:
		return p.ValNG
	}
	return 0
}

// Snapshot is the full classification state of one export: components in
// backend order plus the aggregate panel totals.
type Snapshot struct {
	ExportID string
	Info     PanelInfo

	components orderedMap[Component]
}

// Set adds or replaces a component.
func (s *Snapshot) Set(name string, c Component) {
	s.components.set(name, c)
}

// Components returns the component names in order.
func (s Snapshot) Components() []string {
	return s.components.ordered()
}

// Len returns the number of components.
func (s Snapshot) Len() int {
	return len(s.components.keys)
}

// Component returns a component or an ErrNotFound error.
func (s Snapshot) Component(name string) (Component, error) {
	c, ok := s.components.get(name)
	if !ok {
		return Component{}, fmt.Errorf("component %q: %w", name, ErrNotFound)
	}
	return c, nil
}

// Instance looks up the instance of a component / light pair.
func (s Snapshot) Instance(component, light string) (Instance, error) {
	c, err := s.Component(component)
	if err != nil {
		return Instance{}, err
	}
	in, err := c.Light(light)
	if err != nil {
		return Instance{}, fmt.Errorf("component %q: %w", component, err)
	}
	return in, nil
}
