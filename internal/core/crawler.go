package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/crawlers"
	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/storage"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
)

// ErrNoSession 没有任何浏览器会话可以启动
var ErrNoSession = errors.New("无法启动任何浏览器会话")

// DriverLauncher 启动一个新的浏览器会话
type DriverLauncher func() (crawlers.Driver, error)

// ResourceGate 启动会话前的资源检查
type ResourceGate interface {
	CheckResourceAvailability() (bool, string)
	ClampWorkers(requested int) int
}

// memoryReporter 能报告内存状态的资源检查(可选)
type memoryReporter interface {
	GetMemoryStatus() (crawlers.MemoryStatus, error)
}

// Crawler 主爬取器协调器
// 职责: 构建agent工厂,运行开放搜索或频道抓取,定期输出状态和自动保存,结束时持久化并生成报告
type Crawler struct {
	config    *Config
	headers   models.HeaderProvider
	locators  crawlers.Locators
	resources ResourceGate
	launch    DriverLauncher
	rng       *rand.Rand
	progress  bool
}

// NewCrawler 创建主爬取器,默认使用go-rod启动浏览器
func NewCrawler(config *Config, headers models.HeaderProvider) (*Crawler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	c := &Crawler{
		config:    config,
		headers:   headers,
		locators:  config.ResolvedLocators(),
		resources: crawlers.NewResourceMonitor(config.ResourceMonitorConfig()),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		progress:  true,
	}
	c.launch = c.launchRod
	return c, nil
}

func (c *Crawler) launchRod() (crawlers.Driver, error) {
	var headers http.Header
	if c.headers != nil {
		h, err := c.headers.GetHeaders()
		if err != nil {
			return nil, err
		}
		headers = h
	}
	return crawlers.LaunchRodDriver(crawlers.RodDriverConfig{
		Headless:    c.config.Crawl.Headless,
		BrowserBin:  c.config.Crawl.BrowserBin,
		LoadTimeout: c.config.Crawl.LoadTimeoutDuration(),
		Headers:     headers,
	})
}

// agentFactory 资源允许时启动会话并创建agent
func (c *Crawler) agentFactory() crawlers.AgentFactory {
	agentConfig := crawlers.NewAgentConfig(c.config.Crawl, c.locators)

	return func() (*crawlers.Agent, error) {
		if ok, reason := c.resources.CheckResourceAvailability(); !ok {
			return nil, fmt.Errorf("资源不足,暂不启动浏览器: %s", reason)
		}

		driver, err := c.launch()
		if err != nil {
			return nil, fmt.Errorf("启动浏览器会话失败: %w", err)
		}

		agent, err := crawlers.NewAgent(driver, agentConfig)
		if err != nil {
			_ = driver.Close()
			return nil, err
		}
		return agent, nil
	}
}

// RunSearch 开放搜索: 从terms中随机抽取workers个种子,运行到ctx结束
// 结束时停止所有agent,合并已有输出文件并保存
func (c *Crawler) RunSearch(ctx context.Context, terms []string) (*models.RunReport, error) {
	startTime := time.Now()
	outputFile := c.config.OutputFile(models.ModeSearch)
	report := models.NewRunReport(models.ModeSearch, outputFile, c.config.Crawl, startTime)

	workers := c.resources.ClampWorkers(c.config.Crawl.Workers)
	sampled := utils.SampleLines(terms, workers, c.rng)

	tasks := make([]models.Task, 0, len(sampled))
	for _, term := range sampled {
		seed, err := models.NewSearchSeed(term)
		if err != nil {
			utils.Warnf("跳过无效的搜索关键词: %q", term)
			continue
		}
		tasks = append(tasks, seed)
	}
	if len(tasks) == 0 {
		return report, fmt.Errorf("没有可用的搜索关键词")
	}

	orchestrator, err := crawlers.NewOrchestrator(crawlers.OrchestratorConfig{
		Factory:       c.agentFactory(),
		FlushInterval: c.config.Crawl.FlushIntervalDuration(),
	})
	if err != nil {
		return report, err
	}

	utils.Infof("🚀 开始开放搜索: %d个种子, 输出文件 %s", len(tasks), outputFile)
	store := storage.NewCSVStore(outputFile)

	if err := orchestrator.StartLoops(tasks); err != nil {
		if orchestrator.Status().Workers == 0 {
			orchestrator.Stop()
			report.FatalError = err.Error()
			c.finishReport(report, orchestrator.Status(), len(tasks), 0, 0)
			return report, fmt.Errorf("%w: %w", ErrNoSession, err)
		}
		utils.Warnf("部分worker启动失败,将自动重试: %v", err)
	}

	_, _ = c.waitWithStatus(ctx, store, orchestrator.Collect, orchestrator.Status, orchestrator.Workers, models.VideoKeyColumns, nil)

	for _, info := range orchestrator.Workers() {
		report.ActiveTasks = append(report.ActiveTasks, info.Task)
	}
	sort.Strings(report.ActiveTasks)

	utils.Infof("⏹️  正在停止所有worker...")
	orchestrator.Stop()

	records := orchestrator.Collect()
	saved, saveErr := store.Save(records, models.VideoKeyColumns)
	if saveErr != nil {
		utils.Error(saveErr, "保存结果失败")
	}

	c.finishReport(report, orchestrator.Status(), len(tasks), len(records), saved)
	utils.Infof("✅ 开放搜索结束: 收集%d条记录, 文件共%d条", len(records), saved)
	return report, saveErr
}

// RunChannels 频道模式: 逐个抓取频道视频列表,直到全部完成或ctx结束
// agent池容量耗尽时返回crawlers.ErrCapacityExhausted,已收集的结果仍会保存
func (c *Crawler) RunChannels(ctx context.Context, targets []models.ChannelTarget) (*models.RunReport, error) {
	startTime := time.Now()
	outputFile := c.config.OutputFile(models.ModeChannels)
	report := models.NewRunReport(models.ModeChannels, outputFile, c.config.Crawl, startTime)

	if len(targets) == 0 {
		return report, fmt.Errorf("没有可抓取的频道")
	}

	size := c.resources.ClampWorkers(c.config.Crawl.PoolSize)
	var onOutcome func(models.ChannelTarget, crawlers.Outcome, error)
	if c.progress {
		bar := utils.NewProgressBar(len(targets), "频道抓取")
		onOutcome = func(models.ChannelTarget, crawlers.Outcome, error) {
			_ = bar.Add(1)
		}
		defer func() { _ = bar.Finish() }()
	}

	pool, err := crawlers.NewChannelPool(crawlers.ChannelPoolConfig{
		Size:          size,
		Factory:       c.agentFactory(),
		PollInterval:  c.config.Crawl.PollInterval(),
		FlushInterval: c.config.Crawl.FlushIntervalDuration(),
		OnOutcome:     onOutcome,
	})
	if err != nil {
		return report, err
	}

	utils.Infof("🚀 开始频道抓取: %d个频道, agent池大小 %d, 输出文件 %s", len(targets), size, outputFile)
	store := storage.NewCSVStore(outputFile)

	runDone := make(chan error, 1)
	go func() {
		runDone <- pool.Run(ctx, targets)
	}()

	finished, runErr := c.waitWithStatus(ctx, store, pool.Collect, pool.Status, nil, models.ChannelKeyColumns, runDone)
	if !finished {
		utils.Infof("⏹️  正在停止频道抓取...")
		pool.Stop()
		runErr = <-runDone
	}

	records := pool.Collect()
	saved, saveErr := store.Save(records, models.ChannelKeyColumns)
	if saveErr != nil {
		utils.Error(saveErr, "保存结果失败")
	}

	if runErr != nil {
		report.FatalError = runErr.Error()
	}
	c.finishReport(report, pool.Status(), len(targets), len(records), saved)
	utils.Infof("✅ 频道抓取结束: 收集%d条记录, 文件共%d条", len(records), saved)

	return report, errors.Join(runErr, saveErr)
}

// waitWithStatus 定期输出状态并自动保存,直到ctx结束或done返回
// done为nil时只等待ctx; done返回时finished为true,其结果作为返回值
// workers不为nil时在debug级别逐个输出worker快照
func (c *Crawler) waitWithStatus(
	ctx context.Context,
	store *storage.CSVStore,
	collect func() []models.Record,
	status func() crawlers.Status,
	workers func() []crawlers.WorkerInfo,
	keyColumns []string,
	done <-chan error,
) (finished bool, err error) {
	statusInterval := time.Duration(c.config.Crawl.StatusInterval) * time.Second
	if statusInterval <= 0 {
		statusInterval = 5 * time.Second
	}
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	var autosave <-chan time.Time
	if c.config.Output.AutosaveInterval > 0 {
		ticker := time.NewTicker(time.Duration(c.config.Output.AutosaveInterval) * time.Second)
		defer ticker.Stop()
		autosave = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case err := <-done:
			return true, err
		case <-statusTicker.C:
			s := status()
			utils.Infof("📊 记录: %d | worker: %d | 重启: %d | 待启动: %d | 成功/跳过/失败: %d/%d/%d | 内存: %s",
				s.Records, s.Workers, s.Respawns, s.Pending, s.Recorded, s.Skipped, s.Failed, c.memoryPressure())
			if workers != nil {
				for _, w := range workers() {
					utils.Debugf("  worker %s [%s] 状态: %s | 已访问: %d | 缓冲: %d | 运行: %.0fs",
						w.ID, w.Task, w.State, w.Visited, w.Buffered, w.Uptime)
				}
			}
		case <-autosave:
			if n, err := store.Save(collect(), keyColumns); err != nil {
				utils.Warnf("自动保存失败: %v", err)
			} else {
				utils.Debugf("自动保存完成: %d条", n)
			}
		}
	}
}

// memoryPressure 状态行中的内存描述,资源检查不支持时为"未知"
func (c *Crawler) memoryPressure() string {
	reporter, ok := c.resources.(memoryReporter)
	if !ok {
		return "未知"
	}
	status, err := reporter.GetMemoryStatus()
	if err != nil {
		utils.Debugf("读取内存状态失败: %v", err)
		return "未知"
	}
	return fmt.Sprintf("%s (可用 %dMB)", status.MemoryPressure, status.AvailableMemory/(1024*1024))
}

// finishReport 填充统计并写入报告文件
func (c *Crawler) finishReport(report *models.RunReport, s crawlers.Status, tasks, records, saved int) {
	report.EndTime = time.Now()
	report.Stats = models.RunStats{
		Mode:     report.Mode,
		Tasks:    tasks,
		Records:  records,
		Saved:    saved,
		Workers:  s.Workers,
		Respawns: s.Respawns,
		Recorded: s.Recorded,
		Skipped:  s.Skipped,
		Failed:   s.Failed,
		Duration: report.EndTime.Sub(report.StartTime).Seconds(),
	}

	if err := utils.NewReporter(report.OutputFile).GenerateReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}
}
