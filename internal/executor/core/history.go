package core

import (
	"sync"

	"auroraagent/internal/executor/base"
)

// HistoryRing 最近终态任务的定长环形缓冲
// 写满后淘汰最旧的记录；存入和读出的都是副本
type HistoryRing struct {
	mu    sync.RWMutex
	buf   []*base.Task
	start int // 最旧记录位置
	size  int
	index map[string]int
}

// NewHistoryRing 创建历史环，容量至少为1
func NewHistoryRing(capacity int) *HistoryRing {
	if capacity < 1 {
		capacity = 1
	}
	return &HistoryRing{
		buf:   make([]*base.Task, capacity),
		index: make(map[string]int, capacity),
	}
}

// Add 插入终态任务
func (h *HistoryRing) Add(task *base.Task) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.buf)
	var pos int
	if h.size < capacity {
		pos = (h.start + h.size) % capacity
		h.size++
	} else {
		pos = h.start
		if old := h.buf[pos]; old != nil && h.index[old.ID] == pos {
			delete(h.index, old.ID)
		}
		h.start = (h.start + 1) % capacity
	}
	h.buf[pos] = task.Clone()
	h.index[task.ID] = pos
}

// Get 按ID查找
func (h *HistoryRing) Get(taskID string) (*base.Task, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pos, ok := h.index[taskID]
	if !ok {
		return nil, false
	}
	return h.buf[pos].Clone(), true
}

// Recent 最近的limit条记录，新的在前；limit<=0 返回全部
func (h *HistoryRing) Recent(limit int) []*base.Task {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > h.size {
		limit = h.size
	}
	out := make([]*base.Task, 0, limit)
	capacity := len(h.buf)
	for i := 0; i < limit; i++ {
		pos := (h.start + h.size - 1 - i) % capacity
		out = append(out, h.buf[pos].Clone())
	}
	return out
}

// Len 当前记录数
func (h *HistoryRing) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap 容量
func (h *HistoryRing) Cap() int {
	return len(h.buf)
}
