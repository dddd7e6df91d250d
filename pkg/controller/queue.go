package controller

import (
	"sync"

	"github.com/opst/relmon/pkg/domain"
)

// Request asks the controller to reset or delete a RelMon in the next tick.
type Request struct {
	Id string

	// Requester becomes the owner on reset.
	Requester domain.UserInfo

	// CondorId is a job to be removed in addition to the stored one.
	//
	// Edits clear the stored condor id before the tick sees it.
	CondorId int64
}

// queue keeps Requests in arrival order, at most one per RelMon id.
type queue struct {
	mu    sync.Mutex
	order []string
	items map[string]Request
}

func newQueue() *queue {
	return &queue{items: map[string]Request{}}
}

// Enqueue adds r unless a request for the same id is queued.
//
// It returns false when a request is already queued.
// Even then, the CondorId of r is carried over to the queued one.
func (q *queue) Enqueue(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if queued, ok := q.items[r.Id]; ok {
		q.items[r.Id] = carry(queued, r.CondorId)
		return false
	}
	q.items[r.Id] = r
	q.order = append(q.order, r.Id)
	return true
}

// Carry sets condorId on the queued request for id, if any.
//
// It returns false when nothing is queued for id.
func (q *queue) Carry(id string, condorId int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	queued, ok := q.items[id]
	if !ok {
		return false
	}
	q.items[id] = carry(queued, condorId)
	return true
}

func carry(r Request, condorId int64) Request {
	if 0 < condorId {
		r.CondorId = condorId
	}
	return r
}

// Take removes all queued requests and returns them.
func (q *queue) Take() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	ret := make([]Request, 0, len(q.order))
	for _, id := range q.order {
		ret = append(ret, q.items[id])
	}
	q.order = nil
	q.items = map[string]Request{}
	return ret
}

func (q *queue) Has(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[id]
	return ok
}

func (q *queue) Ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.order...)
}
