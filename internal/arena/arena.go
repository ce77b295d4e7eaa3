// Package arena stores entries in a slice and hands out generation-checked
// handles, so a stale handle to a removed entry can never resolve to the
// entry that later reuses its slot.
//
// Arena and Keyed are not safe for concurrent use; owners serialise access.
package arena

// Handle identifies an arena slot at a specific generation.
// The zero Handle never resolves.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero handle.
func (h Handle) IsZero() bool { return h.generation == 0 }

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Arena is a slice-backed store with slot reuse.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = uint32(len(a.slots) - 1) //nolint:gosec // slot count bounded by registry caps
	}

	s := &a.slots[idx]
	s.generation++
	s.value = v
	s.occupied = true
	a.live++

	return Handle{index: idx, generation: s.generation}
}

// Get returns the value behind h if h is still valid.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	return a.slots[h.index].value, true
}

// Set replaces the value behind h. It returns false if h is stale.
func (a *Arena[T]) Set(h Handle, v T) bool {
	if !a.valid(h) {
		return false
	}
	a.slots[h.index].value = v
	return true
}

// Remove frees the slot behind h and returns the value it held.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.valid(h) {
		return zero, false
	}
	s := &a.slots[h.index]
	v := s.value
	s.value = zero
	s.occupied = false
	a.free = append(a.free, h.index)
	a.live--
	return v, true
}

// Len returns the number of live entries.
func (a *Arena[T]) Len() int { return a.live }

func (a *Arena[T]) valid(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return false
	}
	s := a.slots[h.index]
	return s.occupied && s.generation == h.generation
}

// Keyed pairs an Arena with a string index and remembers insertion order.
// It is the storage behind the node, rule, loop and interlock registries.
type Keyed[T any] struct {
	arena Arena[T]
	index map[string]Handle
	order []string
}

// NewKeyed creates an empty keyed arena.
func NewKeyed[T any]() *Keyed[T] {
	return &Keyed[T]{index: make(map[string]Handle)}
}

// Add stores v under key. It returns false without storing anything if the
// key is already present.
func (k *Keyed[T]) Add(key string, v T) (Handle, bool) {
	if _, exists := k.index[key]; exists {
		return Handle{}, false
	}
	h := k.arena.Insert(v)
	k.index[key] = h
	k.order = append(k.order, key)
	return h, true
}

// Get returns the value stored under key.
func (k *Keyed[T]) Get(key string) (T, bool) {
	h, ok := k.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	return k.arena.Get(h)
}

// Handle returns the handle for key, or the zero handle.
func (k *Keyed[T]) Handle(key string) Handle {
	return k.index[key]
}

// Resolve returns the value behind a handle obtained earlier.
func (k *Keyed[T]) Resolve(h Handle) (T, bool) {
	return k.arena.Get(h)
}

// Remove deletes key and returns the value it held.
func (k *Keyed[T]) Remove(key string) (T, bool) {
	h, ok := k.index[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(k.index, key)
	for i, existing := range k.order {
		if existing == key {
			k.order = append(k.order[:i], k.order[i+1:]...)
			break
		}
	}
	return k.arena.Remove(h)
}

// Each calls fn for every entry in insertion order until fn returns false.
// fn must not add or remove entries.
func (k *Keyed[T]) Each(fn func(key string, v T) bool) {
	for _, key := range k.order {
		v, ok := k.arena.Get(k.index[key])
		if !ok {
			continue
		}
		if !fn(key, v) {
			return
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (k *Keyed[T]) Keys() []string {
	keys := make([]string, len(k.order))
	copy(keys, k.order)
	return keys
}

// Len returns the number of entries.
func (k *Keyed[T]) Len() int { return k.arena.Len() }

// Clear removes every entry.
func (k *Keyed[T]) Clear() {
	k.arena = Arena[T]{}
	k.index = make(map[string]Handle)
	k.order = nil
}
