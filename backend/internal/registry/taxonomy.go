package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Taxonomy is the persisted Topic -> Module classification tree of one
// canvas. Topic and module order is insertion order; the structure
// summary handed to the content intelligence collaborator depends on it,
// so the JSON codec below preserves object key order instead of using
// Go's unordered maps directly.
type Taxonomy struct {
	Topics *TopicSet `json:"topics"`
}

// Topic is one taxonomy entry. Description and color are immutable once
// created.
type Topic struct {
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Modules     *ModuleSet `json:"modules"`
}

// TopicSet is an insertion-ordered map of topic name to topic
type TopicSet struct {
	order []string
	items map[string]*Topic
}

// NewTopicSet creates an empty topic set
func NewTopicSet() *TopicSet {
	return &TopicSet{items: make(map[string]*Topic)}
}

// Get returns the topic for a name
func (ts *TopicSet) Get(name string) (*Topic, bool) {
	t, ok := ts.items[name]
	return t, ok
}

// Set inserts a topic, keeping first-insertion order on re-insert
func (ts *TopicSet) Set(name string, topic *Topic) {
	if _, ok := ts.items[name]; !ok {
		ts.order = append(ts.order, name)
	}
	ts.items[name] = topic
}

// Names returns topic names in insertion order
func (ts *TopicSet) Names() []string {
	return append([]string(nil), ts.order...)
}

// Len returns the number of topics
func (ts *TopicSet) Len() int { return len(ts.items) }

// MarshalJSON writes topics as an object in insertion order
func (ts *TopicSet) MarshalJSON() ([]byte, error) {
	return marshalOrdered(ts.order, func(name string) (interface{}, bool) {
		t, ok := ts.items[name]
		return t, ok
	})
}

// UnmarshalJSON reads topics preserving document key order
func (ts *TopicSet) UnmarshalJSON(data []byte) error {
	ts.order = nil
	ts.items = make(map[string]*Topic)
	return unmarshalOrdered(data, func(name string, dec *json.Decoder) error {
		topic := &Topic{}
		if err := dec.Decode(topic); err != nil {
			return err
		}
		if topic.Modules == nil {
			topic.Modules = NewModuleSet()
		}
		ts.Set(name, topic)
		return nil
	})
}

// ModuleSet is an insertion-ordered map of module name to description
type ModuleSet struct {
	order []string
	items map[string]string
}

// NewModuleSet creates an empty module set
func NewModuleSet() *ModuleSet {
	return &ModuleSet{items: make(map[string]string)}
}

// Get returns the description for a module name
func (ms *ModuleSet) Get(name string) (string, bool) {
	d, ok := ms.items[name]
	return d, ok
}

// Set inserts a module, keeping first-insertion order on re-insert
func (ms *ModuleSet) Set(name, description string) {
	if _, ok := ms.items[name]; !ok {
		ms.order = append(ms.order, name)
	}
	ms.items[name] = description
}

// Names returns module names in insertion order
func (ms *ModuleSet) Names() []string {
	return append([]string(nil), ms.order...)
}

// Len returns the number of modules
func (ms *ModuleSet) Len() int { return len(ms.items) }

// MarshalJSON writes modules as an object in insertion order
func (ms *ModuleSet) MarshalJSON() ([]byte, error) {
	return marshalOrdered(ms.order, func(name string) (interface{}, bool) {
		d, ok := ms.items[name]
		return d, ok
	})
}

// UnmarshalJSON reads modules preserving document key order
func (ms *ModuleSet) UnmarshalJSON(data []byte) error {
	ms.order = nil
	ms.items = make(map[string]string)
	return unmarshalOrdered(data, func(name string, dec *json.Decoder) error {
		var description string
		if err := dec.Decode(&description); err != nil {
			return err
		}
		ms.Set(name, description)
		return nil
	})
}

func marshalOrdered(order []string, value func(string) (interface{}, bool)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range order {
		v, ok := value(name)
		if !ok {
			continue
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func unmarshalOrdered(data []byte, decode func(string, *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", keyTok)
		}
		if err := decode(key, dec); err != nil {
			return err
		}
	}
	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
