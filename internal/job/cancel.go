package job

import (
	"sync"

	"github.com/wardroster/wardroster/internal/types"
)

// cancelSet tracks cancellation requests for in-flight jobs. Runs poll it
// at phase boundaries and during persistence; a request for an unknown job
// id is retained so Cancel before Run still lands.
type cancelSet struct {
	mu  sync.Mutex
	ids map[types.JobID]struct{}
}

func newCancelSet() *cancelSet {
	return &cancelSet{ids: map[types.JobID]struct{}{}}
}

func (c *cancelSet) request(id types.JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[id] = struct{}{}
}

func (c *cancelSet) requested(id types.JobID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[id]
	return ok
}

func (c *cancelSet) clear(id types.JobID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, id)
}

// periodLocks serializes runs per scheduling period. A second concurrent
// run on the same period is refused, not queued; the caller retries after
// the active run finishes.
type periodLocks struct {
	mu     sync.Mutex
	active map[types.PeriodID]types.JobID
}

func newPeriodLocks() *periodLocks {
	return &periodLocks{active: map[types.PeriodID]types.JobID{}}
}

func (p *periodLocks) tryAcquire(periodID types.PeriodID, jobID types.JobID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.active[periodID]; busy {
		return false
	}
	p.active[periodID] = jobID
	return true
}

func (p *periodLocks) release(periodID types.PeriodID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, periodID)
}
