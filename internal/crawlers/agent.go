package crawlers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AgentState agent状态
type AgentState string

const (
	StateIdle       AgentState = "idle"
	StateSearching  AgentState = "searching"
	StateSelecting  AgentState = "selecting"
	StateExtracting AgentState = "extracting"
	StateStopped    AgentState = "stopped"
)

// StopCheck 在每轮循环结束时调用,返回true时循环退出
type StopCheck func() bool

// AgentConfig agent行为参数
type AgentConfig struct {
	SearchURL           string // 搜索地址模板,%s为关键词
	PlatformMarker      string // 搜索页标题必须包含的标识
	ScrollChance        float64
	MaxSearchScrolls    int
	MaxSuggestedScrolls int
	ActionDelay         time.Duration
	Retry               RetryPolicy
	Locators            Locators
	Seed                int64 // 随机种子,0表示使用当前时间
}

// NewAgentConfig 从爬取配置构建agent参数
func NewAgentConfig(c models.CrawlConfig, locators Locators) AgentConfig {
	if locators == nil {
		locators = DefaultLocators()
	}
	return AgentConfig{
		SearchURL:           c.SearchURL,
		PlatformMarker:      c.PlatformMarker,
		ScrollChance:        c.ScrollChance,
		MaxSearchScrolls:    c.MaxSearchScrolls,
		MaxSuggestedScrolls: c.MaxSuggestedScrolls,
		ActionDelay:         c.ActionDelay(),
		Retry: RetryPolicy{
			MaxAttempts: c.RetryAttempts,
			Delay:       c.RetryDelayDuration(),
		},
		Locators: locators,
	}
}

// Agent 绑定一个浏览器会话的抓取agent
// 开放搜索: SEARCHING -> SELECTING -> EXTRACTING -> SELECTING ... -> STOPPED
// 频道模式: 单次ScrapeChannel
type Agent struct {
	id      string
	driver  Driver
	cfg     AgentConfig
	filter  *CandidateFilter
	rng     *rand.Rand
	visited *VisitedSet
	buffer  *RecordBuffer[models.Record]
	logger  zerolog.Logger

	// Terminate时取消,正在进行的重试和等待立即返回
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	task  models.Task
	state AgentState

	terminateOnce sync.Once

	now func() time.Time
}

// NewAgent 创建agent,driver的生命周期归agent所有
func NewAgent(driver Driver, cfg AgentConfig) (*Agent, error) {
	if driver == nil {
		return nil, fmt.Errorf("driver不能为空")
	}
	if cfg.Locators == nil {
		cfg.Locators = DefaultLocators()
	}
	filter, err := NewCandidateFilter(cfg.SearchURL)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Agent{
		id:      id,
		driver:  driver,
		cfg:     cfg,
		filter:  filter,
		rng:     rand.New(rand.NewSource(seed)),
		visited: NewVisitedSet(),
		buffer:  NewRecordBuffer[models.Record](),
		logger:  utils.Component("agent").With().Str("agent_id", id).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
		now:     time.Now,
	}, nil
}

// ID agent唯一标识
func (a *Agent) ID() string {
	return a.id
}

// Assign 分配任务,每个任务只能分配一次
func (a *Agent) Assign(task models.Task) error {
	if task == nil {
		return ErrNoTask
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ctx.Err() != nil {
		return ErrCanceled
	}
	if a.task != nil {
		return fmt.Errorf("%w: %s", ErrAgentBusy, a.task.Key())
	}
	a.task = task
	return nil
}

// Release 清除已完成的任务,使agent可以被再次分配
func (a *Agent) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.task = nil
	if a.state != StateStopped {
		a.state = StateIdle
	}
}

// Task 当前任务,未分配时为nil
func (a *Agent) Task() models.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task
}

// State 当前状态
func (a *Agent) State() AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(state AgentState) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

// Visited 已处理的资源数量
func (a *Agent) Visited() int {
	return a.visited.Len()
}

// Flush 取走缓冲区中的全部记录
func (a *Agent) Flush() []models.Record {
	return a.buffer.Flush()
}

// Terminate 取消进行中的操作并关闭浏览器会话,可重复调用
func (a *Agent) Terminate() {
	a.terminateOnce.Do(func() {
		a.cancel()
		if err := a.driver.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("关闭浏览器会话失败")
		}
		a.setState(StateStopped)
		a.logger.Debug().Int("visited", a.visited.Len()).Msg("agent已终止")
	})
}

// RunLoop 执行开放搜索循环,直到stopCheck返回true或遇到致命错误
// 搜索失败、选择阶段重试耗尽、会话断开都会使循环以错误退出
func (a *Agent) RunLoop(stopCheck StopCheck) error {
	task := a.Task()
	if task == nil {
		return ErrNoTask
	}
	seed, ok := task.(models.SearchSeed)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTask, task.Kind())
	}
	defer a.setState(StateStopped)

	a.setState(StateSearching)
	if err := a.search(seed.Term); err != nil {
		return fmt.Errorf("%w [%s]: %w", ErrSearchFailed, seed.Term, err)
	}

	// 第一次成功选择之前一直从搜索结果中选择
	onSearchPage := true
	for {
		if a.ctx.Err() != nil {
			return ErrCanceled
		}

		a.setState(StateSelecting)
		sel, found, err := a.selectNext(onSearchPage)
		if err != nil {
			return fmt.Errorf("选择候选视频失败: %w", err)
		}

		if found {
			onSearchPage = false
			a.setState(StateExtracting)
			if err := a.extractCurrent(sel); err != nil {
				if IsCanceled(err) || errors.Is(err, ErrSessionLost) {
					return err
				}
				a.logger.Warn().Err(err).Msg("提取视频信息失败")
			}
		}

		if stopCheck != nil && stopCheck() {
			return nil
		}
	}
}

// search 打开搜索结果页并确认页面属于目标平台
func (a *Agent) search(term string) error {
	target := fmt.Sprintf(a.cfg.SearchURL, url.QueryEscape(term))
	if _, err := RunWithRetry(a.ctx, a.cfg.Retry, func() (struct{}, error) {
		return struct{}{}, a.driver.Navigate(target)
	}, nil); err != nil {
		return err
	}
	if err := a.pause(); err != nil {
		return err
	}

	title, err := a.driver.CurrentTitle()
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(title), strings.ToLower(a.cfg.PlatformMarker)) {
		return Fatal(fmt.Errorf("页面标题不包含%q: %q", a.cfg.PlatformMarker, title))
	}

	a.logger.Debug().Str("term", term).Msg("搜索结果已加载")
	return nil
}

type selection struct {
	outcome models.SelectionOutcome
	found   bool
}

// selectNext 从搜索结果或推荐栏选择并点击一个候选视频
// 没有可见候选时found为false
func (a *Agent) selectNext(onSearchPage bool) (models.SelectionOutcome, bool, error) {
	locator, maxScrolls := a.cfg.Locators.Get(LocSuggestedCandidate), a.cfg.MaxSuggestedScrolls
	if onSearchPage {
		locator, maxScrolls = a.cfg.Locators.Get(LocSearchCandidate), a.cfg.MaxSearchScrolls
	}

	result, err := RunWithRetry(a.ctx, a.cfg.Retry, func() (selection, error) {
		return a.chooseCandidate(locator, maxScrolls, !onSearchPage)
	}, a.driver.Reload)
	if err != nil {
		return models.SelectionOutcome{}, false, err
	}
	return result.outcome, result.found, nil
}

type candidate struct {
	el   Element
	href string
}

func (a *Agent) chooseCandidate(locator Locator, maxScrolls int, fromRail bool) (selection, error) {
	scrolls, err := a.randomScroll(maxScrolls)
	if err != nil {
		return selection{}, err
	}

	candidates, err := a.collectCandidates(locator)
	if err != nil {
		if errors.Is(err, ErrLoadTimeout) {
			a.logger.Debug().Msg("没有可见的候选视频")
			return selection{}, nil
		}
		return selection{}, err
	}
	if len(candidates) == 0 {
		return selection{}, nil
	}

	pool := candidates[tailWindowStart(len(candidates), scrolls):]
	chosen := pool[a.rng.Intn(len(pool))]

	if fromRail {
		if err := chosen.el.ScrollIntoView(); err != nil {
			return selection{}, err
		}
		// 顶部导航栏会遮住刚滚动到视口顶端的元素
		if err := a.driver.ScrollBy(0, -50); err != nil {
			return selection{}, err
		}
		if err := a.pause(); err != nil {
			return selection{}, err
		}
	}

	thumb, err := chosen.el.Find(a.cfg.Locators.Get(LocCandidateImage))
	if err != nil {
		if errors.Is(err, ErrLoadTimeout) {
			return selection{}, nil
		}
		return selection{}, err
	}
	src, err := thumb.Property("src")
	if err != nil {
		return selection{}, err
	}

	if fromRail {
		_, err = RunWithRetry(a.ctx, a.cfg.Retry, func() (struct{}, error) {
			return struct{}{}, chosen.el.Click()
		}, nil)
	} else {
		err = chosen.el.Click()
	}
	if err != nil {
		return selection{}, err
	}
	if err := a.pause(); err != nil {
		return selection{}, err
	}

	a.logger.Debug().
		Str("candidate", chosen.href).
		Int("scrolls", scrolls).
		Int("pool", len(pool)).
		Msg("已选择候选视频")

	return selection{
		outcome: models.SelectionOutcome{ThumbnailLink: src, CandidateURL: chosen.href},
		found:   true,
	}, nil
}

// randomScroll 以ScrollChance的概率逐次滚动到底部,最多maxScrolls次
func (a *Agent) randomScroll(maxScrolls int) (int, error) {
	scrolls := 0
	for scrolls < maxScrolls {
		if a.rng.Float64() >= a.cfg.ScrollChance {
			return scrolls, a.pause()
		}
		if err := a.driver.ScrollToBottom(); err != nil {
			return scrolls, err
		}
		scrolls++
		if err := a.pause(); err != nil {
			return scrolls, err
		}
	}
	return scrolls, nil
}

func (a *Agent) collectCandidates(locator Locator) ([]candidate, error) {
	elements, err := a.driver.Locate(locator)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(elements))
	for _, el := range elements {
		href, err := el.Property("href")
		if err != nil {
			continue
		}
		if ok, reason := a.filter.ShouldFollowLink(href); !ok {
			a.logger.Trace().Str("href", href).Str("reason", reason).Msg("过滤候选链接")
			continue
		}
		candidates = append(candidates, candidate{el: el, href: href})
	}
	return candidates, nil
}

// extractCurrent 提取当前视频页的字段并写入缓冲区
// 已访问的视频只等待页面稳定; 任一字段超时则不产生记录
func (a *Agent) extractCurrent(sel models.SelectionOutcome) error {
	currentURL, err := a.driver.CurrentURL()
	if err != nil {
		return err
	}

	id := models.VideoIdentity(currentURL)
	if a.visited.Contains(id) {
		a.logger.Debug().Str("video", id).Msg("视频已访问,跳过")
		return a.pause()
	}

	ext, err := a.readVideoFields()
	if err != nil {
		if errors.Is(err, ErrLoadTimeout) {
			a.logger.Debug().Str("video", id).Msg("字段加载超时,不产生记录")
			return nil
		}
		return err
	}
	ext.VideoURL = currentURL
	ext.ScrapeDate = a.now().Format(models.ScrapeDateLayout)

	record, err := models.NewVideoRecord(sel, ext)
	if err != nil {
		a.logger.Warn().Err(err).Str("video", id).Msg("视频记录不完整")
		return nil
	}

	if !a.visited.Add(id) {
		return nil
	}
	a.buffer.Append(record)

	a.logger.Debug().Str("video", id).Str("title", record.Title).Msg("已提取视频信息")
	return nil
}

func (a *Agent) readVideoFields() (models.ExtractionOutcome, error) {
	return RunWithRetry(a.ctx, a.cfg.Retry, func() (models.ExtractionOutcome, error) {
		var ext models.ExtractionOutcome

		viewLabel, err := a.firstText(LocViewCount)
		if err != nil {
			return ext, err
		}
		ext.ViewCount = utils.ParseCountLabel(viewLabel)

		if ext.Date, err = a.firstText(LocDate); err != nil {
			return ext, err
		}
		if ext.Title, err = a.firstText(LocTitle); err != nil {
			return ext, err
		}
		if ext.Description, err = a.firstText(LocDescription); err != nil {
			return ext, err
		}

		channel, err := a.locateOne(LocChannelNameLink, true)
		if err != nil {
			return ext, err
		}
		if ext.ChannelName, err = channel.Text(); err != nil {
			return ext, err
		}
		if ext.ChannelLink, err = channel.Property("href"); err != nil {
			return ext, err
		}

		subs, err := a.locateOne(LocSubscriberCount, true)
		if err != nil {
			return ext, err
		}
		subsLabel, err := subs.Text()
		if err != nil {
			return ext, err
		}
		ext.SubscriberCount = utils.ParseCountLabel(subsLabel)

		likes, err := a.locateOne(LocLikes, false)
		if err != nil {
			return ext, err
		}
		likesLabel, err := likes.Attribute("aria-label")
		if err != nil {
			return ext, err
		}
		ext.Likes = utils.ParseCountLabel(likesLabel)

		return ext, nil
	}, nil)
}

// locateOne 返回第一个或最后一个匹配元素
func (a *Agent) locateOne(name string, last bool) (Element, error) {
	elements, err := a.driver.Locate(a.cfg.Locators.Get(name))
	if err != nil {
		return nil, fmt.Errorf("定位%s失败: %w", name, err)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("定位%s失败: %w", name, ErrLoadTimeout)
	}
	if last {
		return elements[len(elements)-1], nil
	}
	return elements[0], nil
}

func (a *Agent) firstText(name string) (string, error) {
	el, err := a.locateOne(name, false)
	if err != nil {
		return "", err
	}
	return el.Text()
}

// ScrapeChannel 抓取频道视频列表页
// 已访问、列表为空或三列长度不一致时返回nil, nil
func (a *Agent) ScrapeChannel(name, channelURL string) (*models.ChannelRecord, error) {
	if a.visited.Contains(channelURL) {
		return nil, nil
	}
	if a.ctx.Err() != nil {
		return nil, ErrCanceled
	}

	target := models.ChannelVideosURL(channelURL)
	if _, err := RunWithRetry(a.ctx, a.cfg.Retry, func() (struct{}, error) {
		return struct{}{}, a.driver.Navigate(target)
	}, nil); err != nil {
		return nil, fmt.Errorf("打开频道页失败 [%s]: %w", name, err)
	}
	if err := a.pause(); err != nil {
		return nil, err
	}

	type listing struct {
		views, dates, titles []string
	}
	data, err := RunWithRetry(a.ctx, a.cfg.Retry, func() (listing, error) {
		var l listing
		var err error
		if l.views, err = a.allTexts(LocChannelVideoViews); err != nil {
			return l, err
		}
		if l.dates, err = a.allTexts(LocChannelVideoDates); err != nil {
			return l, err
		}
		if l.titles, err = a.allTexts(LocChannelVideoTitles); err != nil {
			return l, err
		}
		return l, nil
	}, nil)
	if err != nil {
		if errors.Is(err, ErrLoadTimeout) {
			a.logger.Info().Str("channel", name).Msg("频道视频列表为空,跳过")
			return nil, nil
		}
		return nil, fmt.Errorf("读取频道视频列表失败 [%s]: %w", name, err)
	}

	viewCounts := make([]int64, len(data.views))
	for i, label := range data.views {
		viewCounts[i] = utils.ParseCountLabel(label)
	}

	record, err := models.NewChannelRecord(name, channelURL, data.titles, data.dates, viewCounts,
		a.now().Format(models.ScrapeDateLayout))
	if err != nil {
		a.logger.Warn().Err(err).Str("channel", name).Msg("频道数据不完整,跳过")
		return nil, nil
	}

	a.visited.Add(channelURL)
	a.buffer.Append(record)

	a.logger.Debug().Str("channel", name).Int("videos", record.Len()).Msg("已抓取频道")
	return &record, nil
}

func (a *Agent) allTexts(name string) ([]string, error) {
	elements, err := a.driver.Locate(a.cfg.Locators.Get(name))
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			return nil, err
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// pause 页面操作后的固定等待,agent终止时立即返回
func (a *Agent) pause() error {
	if err := sleepContext(a.ctx, a.cfg.ActionDelay); err != nil {
		return ErrCanceled
	}
	return nil
}
