package livequery

import "sync"

// index is the bidirectional identifier ↔ record tracker described in
// spec.md §4.3. All mutations hold one mutex; readers (lookup) also take it,
// since the structure is small and contended only briefly per invalidation.
type index struct {
	mu       sync.Mutex
	byID     map[string]map[*Record]struct{}
	byRecord map[*Record]map[string]struct{}
}

func newIndex() *index {
	return &index{
		byID:     make(map[string]map[*Record]struct{}),
		byRecord: make(map[*Record]map[string]struct{}),
	}
}

// register associates record with each of identifiers, first clearing any
// prior association for that record (register supersedes, it does not add).
func (ix *index) register(r *Record, identifiers []string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.clearLocked(r)
	set := make(map[string]struct{}, len(identifiers))
	for _, id := range identifiers {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
		bucket := ix.byID[id]
		if bucket == nil {
			bucket = make(map[*Record]struct{})
			ix.byID[id] = bucket
		}
		bucket[r] = struct{}{}
	}
	ix.byRecord[r] = set
}

// clear removes record from every bucket it currently appears in.
func (ix *index) clear(r *Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.clearLocked(r)
}

func (ix *index) clearLocked(r *Record) {
	prev := ix.byRecord[r]
	for id := range prev {
		bucket := ix.byID[id]
		delete(bucket, r)
		if len(bucket) == 0 {
			delete(ix.byID, id)
		}
	}
	delete(ix.byRecord, r)
}

// lookup returns the records currently associated with identifier.
func (ix *index) lookup(id string) []*Record {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	bucket := ix.byID[id]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]*Record, 0, len(bucket))
	for r := range bucket {
		out = append(out, r)
	}
	return out
}

// size reports the number of distinct identifiers currently tracked, for
// tests and diagnostics.
func (ix *index) size() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.byID)
}
