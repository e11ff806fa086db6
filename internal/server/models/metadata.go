package models

import (
	"bytes"
	"errors"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata is a string-keyed map that remembers insertion order, so records
// serialize the same way every time. The zero value is ready to use.
type Metadata struct {
	om *orderedmap.OrderedMap[string, any]
}

func NewMetadata() *Metadata {
	return &Metadata{om: orderedmap.New[string, any]()}
}

// Set stores v under key. Overwriting keeps the key's original position.
func (m *Metadata) Set(key string, v any) {
	if m.om == nil {
		m.om = orderedmap.New[string, any]()
	}
	m.om.Set(key, v)
}

func (m *Metadata) Get(key string) (any, bool) {
	if m == nil || m.om == nil {
		return nil, false
	}
	return m.om.Get(key)
}

func (m *Metadata) Keys() []string {
	if m == nil || m.om == nil {
		return nil
	}
	keys := make([]string, 0, m.om.Len())
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (m *Metadata) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Merge copies every entry of other into m, in other's order.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil || other.om == nil {
		return
	}
	for pair := other.om.Oldest(); pair != nil; pair = pair.Next() {
		m.Set(pair.Key, pair.Value)
	}
}

func (m *Metadata) MarshalJSON() ([]byte, error) {
	if m == nil || m.om == nil {
		return []byte("{}"), nil
	}
	return m.om.MarshalJSON()
}

// UnmarshalJSON keeps the order of top-level keys. Numbers decode as float64.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return errors.New("metadata: expected a JSON object")
	}
	om := orderedmap.New[string, any]()
	if err := om.UnmarshalJSON(data); err != nil {
		return err
	}
	m.om = om
	return nil
}
