package crawlers

import "sync"

// RecordBuffer 并发安全的记录缓冲区
// Flush原子地取走全部内容并清空,并发Append不会丢失或重复
type RecordBuffer[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewRecordBuffer 创建缓冲区
func NewRecordBuffer[T any]() *RecordBuffer[T] {
	return &RecordBuffer[T]{}
}

// Append 追加记录
func (b *RecordBuffer[T]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	b.mu.Lock()
	b.items = append(b.items, items...)
	b.mu.Unlock()
}

// Flush 返回并清空当前内容
func (b *RecordBuffer[T]) Flush() []T {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	return items
}

// Len 当前缓冲的记录数
func (b *RecordBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// VisitedSet agent生命周期内已处理的资源标识集合
type VisitedSet struct {
	mu   sync.RWMutex
	seen map[string]bool
}

// NewVisitedSet 创建集合
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]bool)}
}

// Add 添加标识,已存在时返回false
func (v *VisitedSet) Add(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen[id] {
		return false
	}
	v.seen[id] = true
	return true
}

// Contains 检查标识是否已访问
func (v *VisitedSet) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.seen[id]
}

// Len 已访问数量
func (v *VisitedSet) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.seen)
}
