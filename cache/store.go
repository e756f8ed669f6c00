package cache

import "github.com/google/btree"

// Entry is the locally held copy of one key.
type Entry struct {
	Value       int64
	UpdateCount uint64
	Locked      bool
}

// item is a btree element. A locked key that the node has never held
// is kept as an item with present false, so the lock exists without
// making the key visible.
type item struct {
	key   int64
	entry Entry

	present bool
}

func (a *item) Less(b btree.Item) bool {
	return a.key < b.(*item).key
}

// Store is the versioned key-value map of one node.
// It is not safe for concurrent use; only the node goroutine touches it.
type Store struct {
	tree *btree.BTree

	// number of present items
	n int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{tree: btree.New(32)}
}

func (s *Store) lookup(key int64) *item {
	v := s.tree.Get(&item{key: key})
	if v == nil {
		return nil
	}
	return v.(*item)
}

// Get returns the entry of key, if held.
func (s *Store) Get(key int64) (Entry, bool) {
	it := s.lookup(key)
	if it == nil || !it.present {
		return Entry{}, false
	}
	return it.entry, true
}

// Set writes the value and update-count of key, keeping its lock.
func (s *Store) Set(key, value int64, updateCount uint64) {
	it := s.lookup(key)
	if it == nil {
		it = &item{key: key}
		s.tree.ReplaceOrInsert(it)
	}
	if !it.present {
		it.present = true
		s.n++
	}
	it.entry.Value = value
	it.entry.UpdateCount = updateCount
}

// IsNewerOrEqual returns true if key is held with an update-count
// greater than or equal to updateCount.
func (s *Store) IsNewerOrEqual(key int64, updateCount uint64) bool {
	it := s.lookup(key)
	return it != nil && it.present && it.entry.UpdateCount >= updateCount
}

// Apply overwrites key with an observed value unless the held copy is
// strictly newer. Ties go to the incoming value. A key that is not held
// is only written when populate is true. Returns true if key was written.
func (s *Store) Apply(key, value int64, updateCount uint64, populate bool) bool {
	it := s.lookup(key)
	if it == nil || !it.present {
		if !populate {
			return false
		}
		s.Set(key, value, updateCount)
		return true
	}

	if it.entry.UpdateCount > updateCount {
		return false
	}
	it.entry.Value = value
	it.entry.UpdateCount = updateCount
	return true
}

// Lock locks key, held or not. It returns ErrLocked if key is already locked.
func (s *Store) Lock(key int64) error {
	it := s.lookup(key)
	if it == nil {
		it = &item{key: key}
		s.tree.ReplaceOrInsert(it)
	}
	if it.entry.Locked {
		return ErrLocked
	}
	it.entry.Locked = true
	return nil
}

// IsLocked returns true if key is locked.
func (s *Store) IsLocked(key int64) bool {
	it := s.lookup(key)
	return it != nil && it.entry.Locked
}

// Unlock unlocks key. Unlocking an unlocked key is a no-op.
func (s *Store) Unlock(key int64) {
	it := s.lookup(key)
	if it == nil {
		return
	}
	it.entry.Locked = false
	if !it.present {
		s.tree.Delete(it)
	}
}

// UnlockAll releases every lock.
func (s *Store) UnlockAll() {
	var placeholders []*item
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		it.entry.Locked = false
		if !it.present {
			placeholders = append(placeholders, it)
		}
		return true
	})
	for _, it := range placeholders {
		s.tree.Delete(it)
	}
}

// Ascend calls fn for each held key in ascending order,
// until fn returns false.
func (s *Store) Ascend(fn func(key int64, e Entry) bool) {
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		if !it.present {
			return true
		}
		return fn(it.key, it.entry)
	})
}

// Len returns the number of held keys.
func (s *Store) Len() int {
	return s.n
}
