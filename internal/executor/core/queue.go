package core

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"auroraagent/internal/executor/base"
)

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("task queue closed")

// TaskQueue 单个代理的无界FIFO队列
// 重试任务通过 PushFront 插队，保证先于新提交的任务恢复执行
type TaskQueue struct {
	mu     sync.Mutex
	items  *list.List
	notify chan struct{}
	closed bool
}

// NewTaskQueue 创建任务队列
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		items:  list.New(),
		notify: make(chan struct{}, 1),
	}
}

// PushBack 追加到队尾，从不阻塞
func (q *TaskQueue) PushBack(task *base.Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items.PushBack(task)
	q.mu.Unlock()
	q.signal()
	return nil
}

// PushFront 插入到队首
func (q *TaskQueue) PushFront(task *base.Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items.PushFront(task)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pop 取出队首任务，队列为空时阻塞直到有任务、队列关闭或ctx取消
func (q *TaskQueue) Pop(ctx context.Context) (*base.Task, error) {
	for {
		q.mu.Lock()
		if front := q.items.Front(); front != nil {
			task := q.items.Remove(front).(*base.Task)
			more := q.items.Len() > 0
			q.mu.Unlock()
			// 唤醒其它消费者
			if more {
				q.signal()
			}
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			// 继续唤醒其它阻塞的消费者
			q.signal()
			return nil, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len 当前排队数量
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close 关闭队列，已排队的任务仍可取出
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *TaskQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
