package crawlers

import (
	"sync"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
)

// TaskQueue 任务队列
// 职责: 按输入顺序发放任务,按key去重,支持并发安全的Push/Next
type TaskQueue struct {
	mu     sync.Mutex
	tasks  []models.Task
	cursor int
	seen   map[string]bool
}

// NewTaskQueue 创建任务队列,重复任务只保留第一次出现
func NewTaskQueue(tasks []models.Task) *TaskQueue {
	q := &TaskQueue{
		tasks: make([]models.Task, 0, len(tasks)),
		seen:  make(map[string]bool, len(tasks)),
	}
	for _, task := range tasks {
		q.Push(task)
	}
	return q
}

// Push 添加任务,nil或重复任务返回false
func (q *TaskQueue) Push(task models.Task) bool {
	if task == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := task.Key()
	if q.seen[key] {
		return false
	}
	q.seen[key] = true
	q.tasks = append(q.tasks, task)
	return true
}

// Next 取出下一个任务
func (q *TaskQueue) Next() (models.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cursor >= len(q.tasks) {
		return nil, false
	}
	task := q.tasks[q.cursor]
	q.cursor++
	return task, true
}

// Remaining 尚未取出的任务数
func (q *TaskQueue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) - q.cursor
}

// Len 队列中的任务总数(含已取出)
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
