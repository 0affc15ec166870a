// ABOUTME: In-memory participant cache backing the identity service
// ABOUTME: Keeps the service correct while the durable store is unreachable

package identity

import (
	"sync"

	"github.com/devzone/class-relay/internal/store"
)

type participantCache struct {
	mu   sync.RWMutex
	byID map[string]*store.Participant
}

func newParticipantCache() *participantCache {
	return &participantCache{byID: make(map[string]*store.Participant)}
}

func (c *participantCache) get(id string) *store.Participant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byID[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (c *participantCache) put(p *store.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *p
	c.byID[cp.ID] = &cp
}
