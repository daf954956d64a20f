package crawlers

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/google/uuid"
)

// AgentFactory 创建新的agent,通常会启动一个浏览器会话
type AgentFactory func() (*Agent, error)

// Worker 一个agent在一个任务上的运行
type Worker struct {
	ID        string
	Task      models.Task
	Agent     *Agent
	StartedAt time.Time

	done     chan struct{}
	err      error
	produced bool // 频道模式: 是否产出了记录
}

func newWorker(task models.Task, agent *Agent) *Worker {
	return &Worker{
		ID:        uuid.NewString(),
		Task:      task,
		Agent:     agent,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// start 在新goroutine中执行run,panic被转换为错误
func (w *Worker) start(run func() error) {
	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				w.err = fmt.Errorf("worker panic: %v\n%s", r, debug.Stack())
			}
		}()
		w.err = run()
	}()
}

// Alive worker是否仍在运行
func (w *Worker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Wait 等待worker结束
func (w *Worker) Wait() {
	<-w.done
}

// Err worker的退出错误,仅在结束后有效
func (w *Worker) Err() error {
	if w.Alive() {
		return nil
	}
	return w.err
}

// WorkerInfo worker快照
type WorkerInfo struct {
	ID       string     `json:"id"`
	Task     string     `json:"task"`
	Alive    bool       `json:"alive"`
	State    AgentState `json:"state"`
	Visited  int        `json:"visited"`
	Uptime   float64    `json:"uptime"` // 秒
	AgentID  string     `json:"agent_id"`
	Buffered int        `json:"buffered"`
}

func (w *Worker) info() WorkerInfo {
	return WorkerInfo{
		ID:       w.ID,
		Task:     w.Task.String(),
		Alive:    w.Alive(),
		State:    w.Agent.State(),
		Visited:  w.Agent.Visited(),
		Uptime:   time.Since(w.StartedAt).Seconds(),
		AgentID:  w.Agent.ID(),
		Buffered: w.Agent.buffer.Len(),
	}
}

// Status 运行状态快照,读取不加锁
type Status struct {
	Records  int `json:"records"`  // 累加器中的记录数
	Workers  int `json:"workers"`  // 当前worker数
	Respawns int `json:"respawns"` // 已重启的worker数
	Pending  int `json:"pending"`  // 等待启动的任务数
	Recorded int `json:"recorded"` // 频道模式: 产出记录
	Skipped  int `json:"skipped"`  // 频道模式: 跳过
	Failed   int `json:"failed"`   // 频道模式: 失败
}

// Outcome 频道任务终态
type Outcome string

const (
	OutcomeRecorded Outcome = "recorded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

func (w *Worker) outcome() Outcome {
	switch {
	case w.Err() != nil:
		return OutcomeFailed
	case w.produced:
		return OutcomeRecorded
	default:
		return OutcomeSkipped
	}
}
