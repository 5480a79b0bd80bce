package engine

import (
	"maps"
	"sync"
)

// StepsKey is the context namespace holding each visited action's outcome, steps.<nodeId>.
const StepsKey = "steps"

// runContext guards the mutable context of one run. Writers never mutate a nested map in
// place, they replace it, so a snapshot taken under the lock stays consistent after the
// lock is released.
type runContext struct {
	mu     sync.RWMutex
	values map[string]any
}

func newRunContext(values map[string]any) *runContext {
	if values == nil {
		values = map[string]any{}
	}

	return &runContext{values: maps.Clone(values)}
}

// snapshot returns a shallow copy safe to read without the lock.
func (c *runContext) snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.values)
}

// merge folds additions into the context. Maps present on both sides are merged one level
// deep into a new map; any other value replaces the existing one.
func (c *runContext) merge(additions map[string]any) {
	if len(additions) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range additions {
		existing, existingIsMap := c.values[key].(map[string]any)
		addition, additionIsMap := value.(map[string]any)

		if existingIsMap && additionIsMap {
			merged := maps.Clone(existing)
			maps.Copy(merged, addition)
			c.values[key] = merged

			continue
		}

		c.values[key] = value
	}
}

func (c *runContext) setStep(nodeID string, outcome map[string]any) {
	c.merge(map[string]any{StepsKey: map[string]any{nodeID: outcome}})
}
