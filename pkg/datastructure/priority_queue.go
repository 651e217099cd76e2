package datastructure

import (
	"cmp"
	"errors"
)

var ErrItemNotInHeap = errors.New("item not in heap")

type PriorityQueueNode[T cmp.Ordered] struct {
	Rank float64
	Item T
}

func NewPriorityQueueNode[T cmp.Ordered](rank float64, item T) PriorityQueueNode[T] {
	return PriorityQueueNode[T]{Rank: rank, Item: item}
}

// less orders by rank and breaks ties by item, so the pop order never depends on
// insertion order.
func (p PriorityQueueNode[T]) less(o PriorityQueueNode[T]) bool {
	if p.Rank != o.Rank {
		return p.Rank < o.Rank
	}
	return p.Item < o.Item
}

// MinHeap binary heap priorityqueue. pos keeps the heap index of every item so
// DecreaseKey is O(logN).
type MinHeap[T cmp.Ordered] struct {
	heap []PriorityQueueNode[T]
	pos  map[T]int
}

func NewMinHeap[T cmp.Ordered]() *MinHeap[T] {
	return &MinHeap[T]{
		heap: make([]PriorityQueueNode[T], 0),
		pos:  make(map[T]int),
	}
}

func (h *MinHeap[T]) parent(index int) int {
	return (index - 1) / 2
}

func (h *MinHeap[T]) leftChild(index int) int {
	return 2*index + 1
}

func (h *MinHeap[T]) rightChild(index int) int {
	return 2*index + 2
}

func (h *MinHeap[T]) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.pos[h.heap[i].Item] = i
	h.pos[h.heap[j].Item] = j
}

// heapifyUp swap dengan parent selama rank lebih kecil. O(logN)
func (h *MinHeap[T]) heapifyUp(index int) {
	for index != 0 && h.heap[index].less(h.heap[h.parent(index)]) {
		h.swap(index, h.parent(index))
		index = h.parent(index)
	}
}

// heapifyDown swap dengan child terkecil selama child lebih kecil. O(logN)
func (h *MinHeap[T]) heapifyDown(index int) {
	for {
		smallest := index
		left := h.leftChild(index)
		right := h.rightChild(index)
		if left < len(h.heap) && h.heap[left].less(h.heap[smallest]) {
			smallest = left
		}
		if right < len(h.heap) && h.heap[right].less(h.heap[smallest]) {
			smallest = right
		}
		if smallest == index {
			return
		}
		h.swap(index, smallest)
		index = smallest
	}
}

func (h *MinHeap[T]) isEmpty() bool {
	return len(h.heap) == 0
}

func (h *MinHeap[T]) Size() int {
	return len(h.heap)
}

func (h *MinHeap[T]) Contains(item T) bool {
	_, ok := h.pos[item]
	return ok
}

// GetMin returns the minimum without removing it.
func (h *MinHeap[T]) GetMin() (PriorityQueueNode[T], error) {
	if h.isEmpty() {
		return PriorityQueueNode[T]{}, errors.New("heap is empty")
	}
	return h.heap[0], nil
}

// Insert adds key. If the item is already queued its rank is updated instead.
func (h *MinHeap[T]) Insert(key PriorityQueueNode[T]) {
	if idx, ok := h.pos[key.Item]; ok {
		old := h.heap[idx]
		h.heap[idx] = key
		if key.less(old) {
			h.heapifyUp(idx)
		} else {
			h.heapifyDown(idx)
		}
		return
	}
	h.heap = append(h.heap, key)
	index := len(h.heap) - 1
	h.pos[key.Item] = index
	h.heapifyUp(index)
}

// ExtractMin pops the minimum. O(logN)
func (h *MinHeap[T]) ExtractMin() (PriorityQueueNode[T], error) {
	if h.isEmpty() {
		return PriorityQueueNode[T]{}, errors.New("heap is empty")
	}
	root := h.heap[0]
	last := len(h.heap) - 1
	h.swap(0, last)
	h.heap = h.heap[:last]
	delete(h.pos, root.Item)
	if len(h.heap) > 0 {
		h.heapifyDown(0)
	}
	return root, nil
}

// DecreaseKey lowers the rank of an item already in the heap.
func (h *MinHeap[T]) DecreaseKey(key PriorityQueueNode[T]) error {
	idx, ok := h.pos[key.Item]
	if !ok {
		return ErrItemNotInHeap
	}
	if h.heap[idx].Rank < key.Rank {
		return errors.New("new rank is greater than the current rank")
	}
	h.heap[idx].Rank = key.Rank
	h.heapifyUp(idx)
	return nil
}
