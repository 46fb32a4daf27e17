package queue

import (
	"container/heap"
	"sort"

	"github.com/alanwang67/replicated_files/lamportclock"
	"github.com/alanwang67/replicated_files/protocol"
)

// Less orders messages by (timestamp, sender name). Messages that tie on
// both are ordered by type so the order stays total.
func Less(a, b protocol.Message) bool {
	if a.Timestamp == b.Timestamp && a.SenderName == b.SenderName {
		return a.Type < b.Type
	}
	return lamportclock.Less(a.Timestamp, a.SenderName, b.Timestamp, b.SenderName)
}

type entries []protocol.Message

func (e entries) Len() int           { return len(e) }
func (e entries) Less(i, j int) bool { return Less(e[i], e[j]) }
func (e entries) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }

func (e *entries) Push(x any) {
	*e = append(*e, x.(protocol.Message))
}

func (e *entries) Pop() any {
	old := *e
	n := len(old)
	m := old[n-1]
	*e = old[:n-1]
	return m
}

// Queue holds pending Acquire and Response messages ordered by Less. It is
// a min-heap that also supports removing arbitrary entries by predicate.
// It is not safe for concurrent use.
type Queue struct {
	h entries
}

func New() *Queue {
	return &Queue{h: entries{}}
}

func (q *Queue) Insert(m protocol.Message) {
	heap.Push(&q.h, m)
}

// Peek returns the minimum entry without removing it.
func (q *Queue) Peek() (protocol.Message, bool) {
	if len(q.h) == 0 {
		return protocol.Message{}, false
	}
	return q.h[0], true
}

// RemoveWhere removes every entry matching pred and returns them in order.
func (q *Queue) RemoveWhere(pred func(protocol.Message) bool) []protocol.Message {
	var removed []protocol.Message
	kept := q.h[:0]
	for _, m := range q.h {
		if pred(m) {
			removed = append(removed, m)
		} else {
			kept = append(kept, m)
		}
	}
	if len(removed) == 0 {
		return nil
	}

	// clear the tail so dropped payloads can be collected
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = protocol.Message{}
	}
	q.h = kept
	heap.Init(&q.h)

	sort.Slice(removed, func(i, j int) bool { return Less(removed[i], removed[j]) })
	return removed
}

// Select returns the entries matching pred in order, leaving the queue as is.
func (q *Queue) Select(pred func(protocol.Message) bool) []protocol.Message {
	var out []protocol.Message
	for _, m := range q.h {
		if pred(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

func (q *Queue) Len() int {
	return len(q.h)
}
