package crew

import "sync"

// DedupTracker remembers which messages a thread's display has already
// shown, by identifier and by content fingerprint. It is safe for concurrent
// use.
type DedupTracker struct {
	mu               sync.Mutex
	seenIDs          map[string]struct{}
	seenFingerprints map[string]struct{}
}

func NewDedupTracker() *DedupTracker {
	return &DedupTracker{
		seenIDs:          map[string]struct{}{},
		seenFingerprints: map[string]struct{}{},
	}
}

// Rehydrate marks persisted messages as already displayed.
func (d *DedupTracker) Rehydrate(msgs []Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, msg := range msgs {
		d.seenIDs[msg.Identifier()] = struct{}{}
		if fp := msg.Fingerprint(); fp != "" && !msg.IsHuman() {
			d.seenFingerprints[fp] = struct{}{}
		}
	}
}

// Reset forgets everything.
func (d *DedupTracker) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seenIDs = map[string]struct{}{}
	d.seenFingerprints = map[string]struct{}{}
}

func (d *DedupTracker) SeenID(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seenIDs[id]
	return ok
}

func (d *DedupTracker) MarkID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seenIDs[id] = struct{}{}
}

func (d *DedupTracker) SeenFingerprint(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seenFingerprints[fp]
	return ok
}

func (d *DedupTracker) MarkFingerprint(fp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seenFingerprints[fp] = struct{}{}
}

// Len returns the number of identifiers and fingerprints tracked.
func (d *DedupTracker) Len() (ids, fingerprints int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seenIDs), len(d.seenFingerprints)
}
