package webhook

import (
	"sync"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// orgQueues holds one FIFO per priority level for a single organization.
type orgQueues struct {
	levels [4][]*types.WebhookDelivery
	dlq    []*types.WebhookDelivery
}

// queueSet is the per-tenant delivery queue map. Enqueue never blocks;
// Dequeue drains strict priority order across all organizations.
type queueSet struct {
	mu   sync.Mutex
	orgs map[string]*orgQueues

	// order keeps a stable round-robin across orgs so one noisy tenant
	// cannot starve the rest at the same priority level.
	order []string
	next  int
}

func newQueueSet() *queueSet {
	return &queueSet{orgs: make(map[string]*orgQueues)}
}

func (q *queueSet) org(orgID string) *orgQueues {
	oq, ok := q.orgs[orgID]
	if !ok {
		oq = &orgQueues{}
		q.orgs[orgID] = oq
		q.order = append(q.order, orgID)
	}
	return oq
}

// Enqueue appends the delivery to its org's queue at the given priority.
func (q *queueSet) Enqueue(d *types.WebhookDelivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	oq := q.org(d.OrganizationID)
	oq.levels[d.Priority] = append(oq.levels[d.Priority], d)
}

// Dequeue pops the highest-priority delivery, round-robining across orgs
// within each level. Nil when everything is empty.
func (q *queueSet) Dequeue() *types.WebhookDelivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	for level := 0; level < 4; level++ {
		n := len(q.order)
		for i := 0; i < n; i++ {
			orgID := q.order[(q.next+i)%n]
			oq := q.orgs[orgID]
			if len(oq.levels[level]) == 0 {
				continue
			}
			d := oq.levels[level][0]
			oq.levels[level] = oq.levels[level][1:]
			q.next = (q.next + i + 1) % n
			return d
		}
	}
	return nil
}

// MoveToDLQ appends the delivery to its org's dead-letter queue.
func (q *queueSet) MoveToDLQ(d *types.WebhookDelivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	oq := q.org(d.OrganizationID)
	oq.dlq = append(oq.dlq, d)
}

// DLQPage returns one page of the org's dead-letter queue and the total size.
func (q *queueSet) DLQPage(orgID string, offset, limit int) ([]*types.WebhookDelivery, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	oq, ok := q.orgs[orgID]
	if !ok {
		return nil, 0
	}
	total := len(oq.dlq)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]*types.WebhookDelivery, end-offset)
	copy(page, oq.dlq[offset:end])
	return page, total
}

// TakeFromDLQ removes and returns a dead-lettered delivery by id.
func (q *queueSet) TakeFromDLQ(orgID, deliveryID string) *types.WebhookDelivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	oq, ok := q.orgs[orgID]
	if !ok {
		return nil
	}
	for i, d := range oq.dlq {
		if d.ID == deliveryID {
			oq.dlq = append(oq.dlq[:i], oq.dlq[i+1:]...)
			return d
		}
	}
	return nil
}

// Depths returns the queue length per priority plus the DLQ size for one org.
func (q *queueSet) Depths(orgID string) (levels [4]int, dlq int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	oq, ok := q.orgs[orgID]
	if !ok {
		return
	}
	for i := range oq.levels {
		levels[i] = len(oq.levels[i])
	}
	return levels, len(oq.dlq)
}
