package crawlers

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/metrics"
	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
	"github.com/rs/zerolog"
)

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	Factory       AgentFactory
	FlushInterval time.Duration // 汇总缓冲区并检查worker存活的间隔 (默认:2s)
}

// Orchestrator 开放搜索模式的worker池
// 职责: 为每个搜索种子启动一个长期运行的agent,定期汇总缓冲区,替换死亡的worker,停止时汇总全部结果
type Orchestrator struct {
	factory       AgentFactory
	flushInterval time.Duration
	logger        zerolog.Logger

	// 保护roster/pending/starting/accumulator/monitorActive/epoch
	// 不在持有锁时执行页面操作或启动浏览器
	mu            sync.Mutex
	roster        map[string]*Worker
	pending       []models.Task   // 启动失败,等待监控循环重试
	starting      map[string]bool // 正在启动的任务key
	accumulator   []models.Record
	monitorActive bool
	epoch         uint64 // 每次Stop递增,旧epoch启动的agent不再进入roster

	stopping atomic.Bool

	recordCount  atomic.Int64
	workerCount  atomic.Int64
	pendingCount atomic.Int64
	respawns     atomic.Int64
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("agent工厂不能为空")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	return &Orchestrator{
		factory:       cfg.Factory,
		flushInterval: cfg.FlushInterval,
		logger:        utils.Component("orchestrator"),
		roster:        make(map[string]*Worker),
		starting:      make(map[string]bool),
	}, nil
}

// StartLoops 为尚未运行的每个任务启动一个worker
// 已在运行或正在启动的任务被忽略; 启动失败的任务由监控循环重试,错误合并返回
func (o *Orchestrator) StartLoops(tasks []models.Task) error {
	for _, task := range tasks {
		if task == nil {
			return ErrNoTask
		}
		if _, ok := task.(models.SearchSeed); !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedTask, task.Kind())
		}
	}

	o.mu.Lock()
	epoch := o.epoch
	toStart := o.claimLocked(tasks)
	o.mu.Unlock()

	return o.launch(epoch, toStart)
}

// claimLocked 过滤掉已运行/正在启动的任务,并标记为正在启动
func (o *Orchestrator) claimLocked(tasks []models.Task) []models.Task {
	running := make(map[string]bool, len(o.roster))
	for _, w := range o.roster {
		running[w.Task.Key()] = true
	}
	for _, task := range o.pending {
		running[task.Key()] = true
	}

	claimed := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		key := task.Key()
		if running[key] || o.starting[key] {
			continue
		}
		o.starting[key] = true
		claimed = append(claimed, task)
	}
	return claimed
}

// launch 在锁外创建agent,再在锁内登记worker
func (o *Orchestrator) launch(epoch uint64, tasks []models.Task) error {
	var errs []error

	for _, task := range tasks {
		agent, err := o.factory()
		if err == nil {
			if err = agent.Assign(task); err != nil {
				agent.Terminate()
			}
		}

		o.mu.Lock()
		delete(o.starting, task.Key())

		if o.epoch != epoch {
			o.mu.Unlock()
			if err == nil {
				agent.Terminate()
			}
			errs = append(errs, fmt.Errorf("启动任务 [%s] 时编排器已停止: %w", task, ErrCanceled))
			continue
		}

		if err != nil {
			o.pending = append(o.pending, task)
			o.ensureMonitorLocked()
			o.updateCountsLocked()
			o.mu.Unlock()

			o.logger.Error().Err(err).Str("task", task.String()).Msg("启动worker失败,稍后重试")
			errs = append(errs, fmt.Errorf("启动任务失败 [%s]: %w", task, err))
			continue
		}

		w := newWorker(task, agent)
		o.roster[w.ID] = w
		w.start(func() error {
			return agent.RunLoop(o.stopRequested)
		})
		o.ensureMonitorLocked()
		o.updateCountsLocked()
		o.mu.Unlock()

		o.logger.Info().Str("worker_id", w.ID).Str("task", task.String()).Msg("worker已启动")
	}

	return errors.Join(errs...)
}

func (o *Orchestrator) stopRequested() bool {
	return o.stopping.Load()
}

func (o *Orchestrator) ensureMonitorLocked() {
	if o.monitorActive {
		return
	}
	o.monitorActive = true
	go o.monitorLoop()
}

// monitorLoop 定期汇总缓冲区并替换死亡worker
// roster、待重试任务和正在启动的任务都为空时退出
func (o *Orchestrator) monitorLoop() {
	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()

	for range ticker.C {
		o.mu.Lock()
		if len(o.roster) == 0 && len(o.pending) == 0 && len(o.starting) == 0 {
			o.monitorActive = false
			o.mu.Unlock()
			o.logger.Debug().Msg("roster为空,监控循环退出")
			return
		}

		dead := o.reapLocked()
		o.flushLocked()

		var restart []models.Task
		stopping := o.stopping.Load()
		if !stopping {
			restart = make([]models.Task, 0, len(dead)+len(o.pending))
			for _, w := range dead {
				restart = append(restart, w.Task)
			}
			restart = append(restart, o.pending...)
			o.pending = nil
			restart = o.claimLocked(restart)
		}
		epoch := o.epoch
		o.updateCountsLocked()
		o.mu.Unlock()

		for _, w := range dead {
			if !stopping {
				o.logger.Warn().
					Err(w.Err()).
					Str("worker_id", w.ID).
					Str("task", w.Task.String()).
					Msg("worker已退出,准备重启")
			}
			w.Agent.Terminate()
		}
		if !stopping && len(dead) > 0 {
			o.respawns.Add(int64(len(dead)))
			metrics.ObserveRespawns(len(dead))
		}

		if len(restart) > 0 {
			if err := o.launch(epoch, restart); err != nil {
				o.logger.Warn().Err(err).Msg("部分worker重启失败")
			}
		}
	}
}

// flushLocked 把所有agent缓冲区的记录移入累加器
func (o *Orchestrator) flushLocked() int {
	total := 0
	for _, w := range o.roster {
		records := w.Agent.Flush()
		o.accumulator = append(o.accumulator, records...)
		total += len(records)
	}
	metrics.ObserveFlush(string(models.ModeSearch), total)
	return total
}

// reapLocked 从roster移除已退出的worker,其缓冲区移入累加器
func (o *Orchestrator) reapLocked() []*Worker {
	var dead []*Worker
	total := 0
	for id, w := range o.roster {
		if w.Alive() {
			continue
		}
		records := w.Agent.Flush()
		o.accumulator = append(o.accumulator, records...)
		total += len(records)
		dead = append(dead, w)
		delete(o.roster, id)
	}
	if total > 0 {
		metrics.ObserveFlush(string(models.ModeSearch), total)
	}
	return dead
}

func (o *Orchestrator) updateCountsLocked() {
	o.recordCount.Store(int64(len(o.accumulator)))
	o.workerCount.Store(int64(len(o.roster)))
	o.pendingCount.Store(int64(len(o.pending)))
	metrics.SetLiveWorkers(string(models.ModeSearch), len(o.roster))
}

// Stop 请求所有agent在本轮结束后退出,等待全部结束,汇总缓冲区并关闭会话
// 返回后roster为空,可以再次调用StartLoops
func (o *Orchestrator) Stop() {
	o.stopping.Store(true)
	defer o.stopping.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.logger.Info().Int("workers", len(o.roster)).Msg("正在停止所有worker")

	for _, w := range o.roster {
		w.Wait()
	}
	flushed := o.flushLocked()
	for _, w := range o.roster {
		w.Agent.Terminate()
	}

	o.roster = make(map[string]*Worker)
	o.pending = nil
	o.starting = make(map[string]bool)
	o.epoch++
	o.updateCountsLocked()

	o.logger.Info().Int("flushed", flushed).Int("records", len(o.accumulator)).Msg("所有worker已停止")
}

// Collect 返回累加器的副本
func (o *Orchestrator) Collect() []models.Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	records := make([]models.Record, len(o.accumulator))
	copy(records, o.accumulator)
	return records
}

// Status 返回状态快照
func (o *Orchestrator) Status() Status {
	return Status{
		Records:  int(o.recordCount.Load()),
		Workers:  int(o.workerCount.Load()),
		Respawns: int(o.respawns.Load()),
		Pending:  int(o.pendingCount.Load()),
	}
}

// Workers 返回roster快照
func (o *Orchestrator) Workers() []WorkerInfo {
	o.mu.Lock()
	defer o.mu.Unlock()

	infos := make([]WorkerInfo, 0, len(o.roster))
	for _, w := range o.roster {
		infos = append(infos, w.info())
	}
	return infos
}
