// mutation.go
// -----------
// Optimistic mutation support. A mutating request may declare which cache
// entries it affects and a JSON patch to apply to them before the network
// call resolves. On success the targets are invalidated so the next read
// revalidates from the server; on failure the pre-patch snapshots are
// restored. Apply and rollback serialize on the cache mutex; overlapping
// mutations on the same key are last-applied-wins.
package resilientclient

import (
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

// MutationIntent describes the cache effect of a state-changing call.
type MutationIntent struct {
	// Targets are the cache entries the optimistic patch applies to.
	Targets []CacheKey

	// Patch maps sjson paths to the values written into each target's
	// cached JSON document, e.g. {"status": "approved"}.
	Patch map[string]interface{}

	// Invalidates lists additional key patterns invalidated once the server
	// confirms the write, e.g. "negotiations:*" when writing a rate that a
	// negotiation references.
	Invalidates []string
}

// mutationSnapshot captures the pre-patch values needed to reverse an
// optimistic application.
type mutationSnapshot struct {
	values map[string][]byte
}

// applyOptimistic patches each cached target synchronously and returns the
// snapshot to restore on failure. Targets with no cached entry are skipped;
// there is nothing speculative to show for them.
func (c *Cache) applyOptimistic(m *MutationIntent) *mutationSnapshot {
	snap := &mutationSnapshot{values: make(map[string][]byte)}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, target := range m.Targets {
		k := target.String()
		entry, ok := c.entries[k]
		if !ok {
			continue
		}
		snap.values[k] = entry.value

		patched := entry.value
		for path, value := range m.Patch {
			next, err := sjson.SetBytes(patched, path, value)
			if err != nil {
				c.logger.WithFields(log.Fields{"cache_key": k, "path": path, "error": err}).
					Warn("optimistic patch path skipped")
				continue
			}
			patched = next
		}
		entry.value = patched
	}
	return snap
}

// rollback restores the snapshots taken by applyOptimistic. Entries removed
// in the meantime stay removed.
func (c *Cache) rollback(snap *mutationSnapshot) {
	if snap == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, value := range snap.values {
		if entry, ok := c.entries[k]; ok {
			entry.value = value
		}
	}
}

// commit finalizes a confirmed mutation: targets and declared patterns are
// invalidated so subsequent reads revalidate against the server.
func (c *Cache) commit(m *MutationIntent) {
	for _, target := range m.Targets {
		c.Invalidate(target.String())
	}
	for _, pattern := range m.Invalidates {
		c.Invalidate(pattern)
	}
}
