package aggregate

import "encoding/json"

// OrderedMap is a key -> value container that remembers insertion order.
type OrderedMap[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// NewOrderedMap returns an empty map.
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{values: make(map[K]V)}
}

// GetOrInsert returns the value stored under key, creating it with newValue
// and appending the key to the order when absent.
func (m *OrderedMap[K, V]) GetOrInsert(key K, newValue func() V) V {
	if v, ok := m.values[key]; ok {
		return v
	}
	v := newValue()
	m.keys = append(m.keys, key)
	m.values[key] = v
	return v
}

// Get returns the value for key.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of keys.
func (m *OrderedMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *OrderedMap[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	return append([]K(nil), m.keys...)
}

// Values returns the values in insertion order.
func (m *OrderedMap[K, V]) Values() []V {
	if m == nil {
		return nil
	}
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

// MarshalJSON encodes the values as an array in insertion order.
func (m *OrderedMap[K, V]) MarshalJSON() ([]byte, error) {
	values := m.Values()
	if values == nil {
		values = []V{}
	}
	return json.Marshal(values)
}
