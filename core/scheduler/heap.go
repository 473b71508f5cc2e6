package scheduler

import "time"

type entry struct {
	trigger Trigger
	seq     uint64
}

// queue is a container/heap min-heap ordered by due time then insertion.
type queue []entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if !q[i].trigger.Due.Equal(q[j].trigger.Due) {
		return q[i].trigger.Due.Before(q[j].trigger.Due)
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(entry)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

func (q queue) peek() (time.Time, bool) {
	if len(q) == 0 {
		return time.Time{}, false
	}
	return q[0].trigger.Due, true
}
