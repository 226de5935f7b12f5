package model

// StateDict is the persistent Vector-to-Vector store a program reads and
// writes between frames. Keys compare by canonical form, so the numeric key
// 3 and the key 3.0 address the same entry.
//
// A StateDict must not be shared between concurrently running programs.
type StateDict struct {
	entries map[string]stateEntry
	order   []string
	changed bool
}

type stateEntry struct {
	key   Vector
	value Vector
}

// NewStateDict returns an empty state store.
func NewStateDict() *StateDict {
	return &StateDict{entries: make(map[string]stateEntry)}
}

// Get returns the value stored under key, null if absent.
func (s *StateDict) Get(key Vector) Vector {
	return s.entries[key.Key()].value
}

// Contains reports whether key has a stored value.
func (s *StateDict) Contains(key Vector) bool {
	_, ok := s.entries[key.Key()]
	return ok
}

// Set stores value under key, replacing any previous entry. Storing null
// deletes the entry. The change flag is raised only when the stored value
// actually differs.
func (s *StateDict) Set(key Vector, value Vector) {
	k := key.Key()
	existing, ok := s.entries[k]
	if value.IsNull() {
		if ok {
			delete(s.entries, k)
			for i, o := range s.order {
				if o == k {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.changed = true
		}
		return
	}
	if ok && existing.value.Equal(value) {
		return
	}
	if !ok {
		s.order = append(s.order, k)
	}
	s.entries[k] = stateEntry{key: key, value: value}
	s.changed = true
}

// Keys returns the stored keys in insertion order.
func (s *StateDict) Keys() []Vector {
	keys := make([]Vector, 0, len(s.order))
	for _, k := range s.order {
		keys = append(keys, s.entries[k].key)
	}
	return keys
}

// Len returns the number of stored entries.
func (s *StateDict) Len() int {
	return len(s.entries)
}

// Changed reports whether any entry was modified since the last ClearChanged.
func (s *StateDict) Changed() bool {
	return s.changed
}

// ClearChanged resets the change flag, typically at the start of a frame.
func (s *StateDict) ClearChanged() {
	s.changed = false
}
