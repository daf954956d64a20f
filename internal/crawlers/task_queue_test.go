package crawlers

import (
	"sync"
	"testing"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTaskQueue(t *testing.T) {
	q := NewTaskQueue([]models.Task{
		models.SearchSeed{Term: "cats"},
		models.SearchSeed{Term: "dogs"},
		models.SearchSeed{Term: "cats"},
		nil,
	})

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Remaining())
	assert.False(t, q.Push(models.SearchSeed{Term: "dogs"}))
	assert.True(t, q.Push(models.ChannelTarget{Name: "cats", URL: "https://www.youtube.com/@cats"}))

	var order []string
	for {
		task, ok := q.Next()
		if !ok {
			break
		}
		order = append(order, task.Key())
	}
	assert.Equal(t, []string{"search:cats", "search:dogs", "channel:https://www.youtube.com/@cats"}, order)
	assert.Equal(t, 0, q.Remaining())
	assert.Equal(t, 3, q.Len())
}

func TestTaskQueueConcurrentNext(t *testing.T) {
	tasks := make([]models.Task, 0, 100)
	for i := 0; i < 100; i++ {
		tasks = append(tasks, models.SearchSeed{Term: string(rune('a'+i%26)) + string(rune('a'+i/26))})
	}
	q := NewTaskQueue(tasks)

	var mu sync.Mutex
	taken := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, ok := q.Next()
				if !ok {
					return
				}
				mu.Lock()
				taken[task.Key()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, taken, 100)
	for key, n := range taken {
		assert.Equal(t, 1, n, key)
	}
}
