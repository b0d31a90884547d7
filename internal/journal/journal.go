package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Journal is the ordered mapping task_id -> Binding.
//
// Iteration follows insertion order. Re-putting an existing key keeps its
// position; Delete followed by Put moves it to the end. The JSON form is an
// object whose members appear in iteration order.
type Journal struct {
	order   []string
	records map[string]Binding
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{records: make(map[string]Binding)}
}

// Get returns the binding for taskID.
func (j *Journal) Get(taskID string) (Binding, bool) {
	if j == nil {
		return Binding{}, false
	}
	b, ok := j.records[taskID]
	return b, ok
}

// Has reports whether taskID is journaled.
func (j *Journal) Has(taskID string) bool {
	_, ok := j.Get(taskID)
	return ok
}

// Put inserts or replaces the binding keyed by b.TaskID.
func (j *Journal) Put(b Binding) {
	if j.records == nil {
		j.records = make(map[string]Binding)
	}
	if _, exists := j.records[b.TaskID]; !exists {
		j.order = append(j.order, b.TaskID)
	}
	j.records[b.TaskID] = b
}

// Delete removes taskID and reports whether it was present.
func (j *Journal) Delete(taskID string) bool {
	if _, ok := j.records[taskID]; !ok {
		return false
	}
	delete(j.records, taskID)
	for i, id := range j.order {
		if id == taskID {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of bindings.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.order)
}

// Records returns every binding in iteration order.
func (j *Journal) Records() []Binding {
	if j == nil {
		return nil
	}
	out := make([]Binding, 0, len(j.order))
	for _, id := range j.order {
		out = append(out, j.records[id])
	}
	return out
}

// Recent returns the last n bindings in iteration order. A non-positive n
// returns nothing.
func (j *Journal) Recent(n int) []Binding {
	all := j.Records()
	if n <= 0 {
		return nil
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Clone returns a deep copy.
func (j *Journal) Clone() *Journal {
	out := New()
	if j == nil {
		return out
	}
	out.order = append([]string(nil), j.order...)
	for k, v := range j.records {
		out.records[k] = v
	}
	return out
}

func (j *Journal) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range j.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalRaw(id)
		if err != nil {
			return nil, err
		}
		value, err := marshalRaw(j.records[id])
		if err != nil {
			return nil, fmt.Errorf("encode binding %s: %w", id, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (j *Journal) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*j = *New()
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("journal: expected object, got %v", tok)
	}
	out := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("journal: expected string key, got %v", keyTok)
		}
		var b Binding
		if err := dec.Decode(&b); err != nil {
			return fmt.Errorf("journal: decode %s: %w", key, err)
		}
		// The object key is authoritative for lookups.
		b.TaskID = key
		out.Put(b)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*j = *out
	return nil
}
