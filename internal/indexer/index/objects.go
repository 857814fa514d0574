package index

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// objectSpec is the keyed form: {"name": {"docId": 1, "type": 0, "priority": 1}}.
type objectSpec struct {
	DocID    *int   `json:"docId"`
	Type     int    `json:"type"`
	Priority int    `json:"priority"`
	Anchor   string `json:"anchor"`
}

// objectNameSpec is the keyed form of an objnames entry.
type objectNameSpec struct {
	Domain         string `json:"domain"`
	Name           string `json:"name"`
	DisplayName    string `json:"displayName"`
	SearchPriority int    `json:"searchPriority"`
}

func decodeObjectTypes(objTypes, objNames map[string]json.RawMessage) (map[int]ObjectType, error) {
	types := make(map[int]ObjectType, len(objNames))
	get := func(field, key string) (ObjectType, error) {
		id, err := strconv.Atoi(key)
		if err != nil {
			return ObjectType{}, malformed(field, "type id %q is not an integer", key)
		}
		t, ok := types[id]
		if !ok {
			t = ObjectType{ID: id}
		}
		return t, nil
	}

	for key, raw := range objTypes {
		t, err := get("objtypes", key)
		if err != nil {
			return nil, err
		}
		var label string
		if err := json.Unmarshal(raw, &label); err != nil {
			label = string(bytes.TrimSpace(raw))
		}
		t.Label = label
		types[t.ID] = t
	}

	for key, raw := range objNames {
		t, err := get("objnames", key)
		if err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)
		switch {
		case len(raw) > 0 && raw[0] == '[':
			// [domain, name, display name]
			var parts []string
			if err := json.Unmarshal(raw, &parts); err != nil {
				return nil, malformed("objnames", "type %s: %v", key, err)
			}
			if len(parts) > 0 {
				t.Domain = parts[0]
			}
			if len(parts) > 1 {
				t.Name = parts[1]
			}
			if len(parts) > 2 {
				t.DisplayName = parts[2]
			}
		case len(raw) > 0 && raw[0] == '{':
			var spec objectNameSpec
			if err := json.Unmarshal(raw, &spec); err != nil {
				return nil, malformed("objnames", "type %s: %v", key, err)
			}
			t.Domain, t.Name = spec.Domain, spec.Name
			t.DisplayName, t.SearchPriority = spec.DisplayName, spec.SearchPriority
		default:
			var display string
			if err := json.Unmarshal(raw, &display); err != nil {
				return nil, malformed("objnames", "type %s: unsupported shape", key)
			}
			t.DisplayName = display
		}
		types[t.ID] = t
	}
	return types, nil
}

// decodeObjects accepts three layouts:
//
//	{"name": {"docId": 0, "type": 1, "priority": 1}}        one or a list
//	{"prefix": [[doc, type, prio, anchor, name], ...]}
//	{"prefix": {"name": [doc, type, prio, anchor]}}
func decodeObjects(raw map[string]json.RawMessage, types map[int]ObjectType, numDocs int) ([]ObjectEntry, error) {
	var out []ObjectEntry
	for key, value := range raw {
		value = bytes.TrimSpace(value)
		if len(value) == 0 {
			continue
		}
		switch value[0] {
		case '[':
			var items []json.RawMessage
			if err := json.Unmarshal(value, &items); err != nil {
				return nil, malformed("objects", "%q: %v", key, err)
			}
			for _, item := range items {
				item = bytes.TrimSpace(item)
				var (
					e   ObjectEntry
					err error
				)
				if len(item) > 0 && item[0] == '{' {
					e, err = decodeObjectSpec(key, item)
				} else {
					e, err = decodeObjectTuple(key, "", item)
				}
				if err != nil {
					return nil, err
				}
				out = append(out, e)
			}
		case '{':
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(value, &fields); err != nil {
				return nil, malformed("objects", "%q: %v", key, err)
			}
			if hasKeyFold(fields, "docId") {
				e, err := decodeObjectSpec(key, value)
				if err != nil {
					return nil, err
				}
				out = append(out, e)
				continue
			}
			for name, tuple := range fields {
				e, err := decodeObjectTuple(key, name, tuple)
				if err != nil {
					return nil, err
				}
				out = append(out, e)
			}
		default:
			return nil, malformed("objects", "%q: unsupported shape", key)
		}
	}

	for i := range out {
		e := &out[i]
		if e.DocID < 0 || e.DocID >= numDocs {
			return nil, malformed("objects", "object %q references document %d of %d", e.Name, e.DocID, numDocs)
		}
		switch e.Anchor {
		case "":
			e.Anchor = e.Name
		case "-":
			e.Anchor = types[e.TypeID].Name + "-" + e.Name
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].DocID != out[j].DocID {
			return out[i].DocID < out[j].DocID
		}
		return out[i].Anchor < out[j].Anchor
	})
	return out, nil
}

func decodeObjectSpec(name string, raw json.RawMessage) (ObjectEntry, error) {
	var spec objectSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return ObjectEntry{}, malformed("objects", "%q: %v", name, err)
	}
	if spec.DocID == nil {
		return ObjectEntry{}, malformed("objects", "%q: missing docId", name)
	}
	return ObjectEntry{
		Name:     name,
		DocID:    *spec.DocID,
		TypeID:   spec.Type,
		Priority: spec.Priority,
		Anchor:   spec.Anchor,
	}, nil
}

// decodeObjectTuple reads [doc, type, prio, anchor] or, when name is empty,
// [doc, type, prio, anchor, name]. prefix qualifies the name.
func decodeObjectTuple(prefix, name string, raw json.RawMessage) (ObjectEntry, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ObjectEntry{}, malformed("objects", "%q: %v", prefix, err)
	}
	want := 4
	if name == "" {
		want = 5
	}
	if len(parts) < want {
		return ObjectEntry{}, malformed("objects", "%q: tuple has %d fields, want %d", prefix, len(parts), want)
	}
	var e ObjectEntry
	ints := []*int{&e.DocID, &e.TypeID, &e.Priority}
	for i, dst := range ints {
		if err := json.Unmarshal(parts[i], dst); err != nil {
			return ObjectEntry{}, malformed("objects", "%q: field %d: %v", prefix, i, err)
		}
	}
	if err := json.Unmarshal(parts[3], &e.Anchor); err != nil {
		e.Anchor = strings.Trim(string(parts[3]), `"`)
	}
	if name == "" {
		if err := json.Unmarshal(parts[4], &name); err != nil {
			return ObjectEntry{}, malformed("objects", "%q: name: %v", prefix, err)
		}
	}
	e.Name = name
	if prefix != "" {
		e.Name = prefix + "." + name
	}
	return e, nil
}

// indexObjects keys every object by its lowercased full name and by its last
// dotted component.
func indexObjects(objects []ObjectEntry) (map[string][]int, []string) {
	keys := make(map[string][]int)
	add := func(k string, i int) {
		list := keys[k]
		if len(list) > 0 && list[len(list)-1] == i {
			return
		}
		keys[k] = append(list, i)
	}
	for i, o := range objects {
		full := strings.ToLower(o.Name)
		add(full, i)
		if dot := strings.LastIndexByte(full, '.'); dot >= 0 && dot < len(full)-1 {
			add(full[dot+1:], i)
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	return keys, sorted
}

func hasKeyFold(m map[string]json.RawMessage, key string) bool {
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
