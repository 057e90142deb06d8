package ledger

import (
	"container/heap"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Task is one deferred verification keyed by (prediction id, horizon).
type Task struct {
	ID      string    `json:"id"`
	Horizon int       `json:"horizon"`
	Due     time.Time `json:"due"`
}

// Key encodes the task identity as "id|horizon".
func (t Task) Key() string {
	return t.ID + "|" + strconv.Itoa(t.Horizon)
}

func parseKey(key string) (string, int, error) {
	i := strings.LastIndexByte(key, '|')
	if i <= 0 {
		return "", 0, fmt.Errorf("malformed task key %q", key)
	}
	h, err := strconv.Atoi(key[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed task horizon %q: %w", key, err)
	}
	return key[:i], h, nil
}

// Scheduler is a due-time ordered queue of verification tasks drained by a
// single loop.
type Scheduler interface {
	Schedule(ctx context.Context, tasks ...Task) error
	PopDue(ctx context.Context, now time.Time) ([]Task, error)
	Len(ctx context.Context) (int, error)
}

type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if !h[i].Due.Equal(h[j].Due) {
		return h[i].Due.Before(h[j].Due)
	}
	if h[i].ID != h[j].ID {
		return h[i].ID < h[j].ID
	}
	return h[i].Horizon < h[j].Horizon
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// HeapScheduler is the in-process min-heap scheduler.
type HeapScheduler struct {
	mu    sync.Mutex
	tasks taskHeap
}

func NewHeapScheduler() *HeapScheduler {
	return &HeapScheduler{}
}

func (s *HeapScheduler) Schedule(_ context.Context, tasks ...Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		heap.Push(&s.tasks, t)
	}
	return nil
}

func (s *HeapScheduler) PopDue(_ context.Context, now time.Time) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Task
	for len(s.tasks) > 0 && !s.tasks[0].Due.After(now) {
		due = append(due, heap.Pop(&s.tasks).(Task))
	}
	return due, nil
}

func (s *HeapScheduler) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks), nil
}
