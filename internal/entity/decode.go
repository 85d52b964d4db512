package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNoEntities is returned when a file holds no entity records.
var ErrNoEntities = errors.New("no entity records")

// Decode parses the entities in one JSON file. Three layouts are accepted:
// a single entity object, an array of entity objects, or an envelope object
// whose array values are keyed by "entities" or by an entity type or
// collection name ("deities": [...]), or by any key when it is the only
// array in the object. A type or collection key supplies the type of records
// that do not declare one.
func Decode(data []byte, file string) ([]Entity, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", file, ErrNoEntities)
	}

	var (
		entities []Entity
		err      error
	)
	switch data[0] {
	case '[':
		entities, err = decodeArray(data, "")
	case '{':
		entities, err = decodeObject(data)
	default:
		return nil, fmt.Errorf("%s: expected JSON object or array", file)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%s: %w", file, ErrNoEntities)
	}

	for i := range entities {
		entities[i].SourceFile = file
	}
	return entities, nil
}

func decodeObject(data []byte) ([]Entity, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	// A record carries at least an id or a name at the top level.
	if _, ok := top["id"]; ok {
		return decodeSingle(data)
	}
	if _, ok := top["name"]; ok {
		return decodeSingle(data)
	}

	keys := make([]string, 0, len(top))
	var arrays []string
	for k, v := range top {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '[' {
			continue
		}
		arrays = append(arrays, k)
		if k == "entities" {
			keys = append(keys, k)
			continue
		}
		if _, ok := ParseType(k); ok {
			keys = append(keys, k)
		}
	}
	// Any other envelope is accepted when it holds exactly one array.
	if len(keys) == 0 && len(arrays) == 1 {
		keys = arrays
	}
	if len(keys) == 0 {
		return nil, ErrNoEntities
	}
	sort.Strings(keys)

	var out []Entity
	for _, k := range keys {
		var hint Type
		if t, ok := ParseType(k); ok {
			hint = t
		}
		batch, err := decodeArray(top[k], hint)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func decodeSingle(data []byte) ([]Entity, error) {
	var e Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	fillDefaults(&e, "")
	return []Entity{e}, nil
}

func decodeArray(data []byte, hint Type) ([]Entity, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Entity, 0, len(raw))
	for i, r := range raw {
		var e Entity
		if err := json.Unmarshal(r, &e); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		fillDefaults(&e, hint)
		out = append(out, e)
	}
	return out, nil
}

// fillDefaults derives missing ids and types and canonicalises plural types.
func fillDefaults(e *Entity, hint Type) {
	if e.Type == "" {
		e.Type = hint
	} else if t, ok := ParseType(string(e.Type)); ok {
		e.Type = t
	}
	if e.ID == "" && e.Name != "" {
		e.ID = Slugify(e.Name)
	}
}
