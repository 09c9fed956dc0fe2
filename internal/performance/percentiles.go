package performance

import (
	"math/rand"
)

const (
	skipMaxLevel = 16
	skipP        = 0.5
)

type skipNode struct {
	value float64
	next  []*skipNode
}

// skipList keeps values sorted so rank queries stay O(log n) per insert and
// delete. It is not safe for concurrent use.
type skipList struct {
	head  *skipNode
	level int
	size  int
	rng   *rand.Rand
}

func newSkipList(seed int64) *skipList {
	return &skipList{
		head:  &skipNode{next: make([]*skipNode, skipMaxLevel)},
		level: 1,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (s *skipList) randomLevel() int {
	lvl := 1
	for lvl < skipMaxLevel && s.rng.Float64() < skipP {
		lvl++
	}
	return lvl
}

// path returns, per level, the last node whose value is below v.
func (s *skipList) path(v float64) []*skipNode {
	update := make([]*skipNode, skipMaxLevel)
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.next[i] != nil && cur.next[i].value < v {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	return update
}

func (s *skipList) insert(v float64) {
	update := s.path(v)
	lvl := s.randomLevel()
	if lvl > s.level {
		for i := s.level; i < lvl; i++ {
			update[i] = s.head
		}
		s.level = lvl
	}
	n := &skipNode{value: v, next: make([]*skipNode, lvl)}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.size++
}

func (s *skipList) remove(v float64) bool {
	update := s.path(v)
	n := update[0].next[0]
	if n == nil || n.value != v {
		return false
	}
	for i := range n.next {
		update[i].next[i] = n.next[i]
	}
	for s.level > 1 && s.head.next[s.level-1] == nil {
		s.level--
	}
	s.size--
	return true
}

// at returns the value at zero-based rank i.
func (s *skipList) at(i int) float64 {
	cur := s.head.next[0]
	for ; i > 0 && cur != nil; i-- {
		cur = cur.next[0]
	}
	if cur == nil {
		return 0
	}
	return cur.value
}

// Window tracks the most recent values of one series and answers percentile
// queries over them. Once full, each new value evicts the oldest.
type Window struct {
	sorted *skipList
	ring   []float64
	pos    int
	full   bool
}

// NewWindow creates a window holding at most size values.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		sorted: newSkipList(int64(size)),
		ring:   make([]float64, size),
	}
}

// Add records v.
func (w *Window) Add(v float64) {
	if w.full {
		w.sorted.remove(w.ring[w.pos])
	}
	w.sorted.insert(v)
	w.ring[w.pos] = v
	w.pos = (w.pos + 1) % len(w.ring)
	if w.pos == 0 {
		w.full = true
	}
}

// Len returns how many values are held.
func (w *Window) Len() int { return w.sorted.size }

// Percentile returns the value at rank floor((n-1)*p/100), or 0 when empty.
func (w *Window) Percentile(p float64) float64 {
	n := w.sorted.size
	if n == 0 {
		return 0
	}
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return w.sorted.at(int(float64(n-1) * p / 100))
}

// Values returns the held values in ascending order.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.sorted.size)
	for cur := w.sorted.head.next[0]; cur != nil; cur = cur.next[0] {
		out = append(out, cur.value)
	}
	return out
}
