package crawlers

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
)

// fakeDriver 内存中的页面模拟
// 候选元素点击后跳转到其href; 未配置的定位返回ErrLoadTimeout
type fakeDriver struct {
	mu sync.Mutex

	title      string
	currentURL string
	candidates []string
	texts      map[string][]string
	props      map[string]map[string]string
	attrs      map[string]map[string]string

	navigateFailures int   // 前N次Navigate失败
	navigateErr      error // 失败时返回的错误
	locateErrs       map[string]error

	// 候选元素被遮挡时Click等待clickTimeout后返回ErrLoadTimeout
	clickCovered bool
	clickTimeout time.Duration
	clickLimit   int // 大于0时,成功点击clickLimit次后会话断开

	navigations []string
	clicks      []string
	reloads     int
	scrolls     int
	closeCount  int
}

var reverseLocators = func() map[Locator]string {
	m := make(map[Locator]string)
	for name, loc := range DefaultLocators() {
		m[loc] = name
	}
	return m
}()

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		title:      "cats - YouTube",
		texts:      make(map[string][]string),
		props:      make(map[string]map[string]string),
		attrs:      make(map[string]map[string]string),
		locateErrs: make(map[string]error),
	}
}

// withVideoPage 配置视频页字段
func (d *fakeDriver) withVideoPage() *fakeDriver {
	d.texts[LocViewCount] = []string{"1,234 views"}
	d.texts[LocDate] = []string{"Jan 5, 2024"}
	d.texts[LocTitle] = []string{"a cat video"}
	d.texts[LocDescription] = []string{"cats doing things"}
	d.texts[LocChannelNameLink] = []string{"Cat Channel"}
	d.props[LocChannelNameLink] = map[string]string{"href": "https://www.youtube.com/@cats"}
	d.texts[LocSubscriberCount] = []string{"1.2M subscribers"}
	d.attrs[LocLikes] = map[string]string{"aria-label": "5,000 likes"}
	return d
}

// withChannelPage 配置频道视频列表
func (d *fakeDriver) withChannelPage(views, dates, titles []string) *fakeDriver {
	d.texts[LocChannelVideoViews] = views
	d.texts[LocChannelVideoDates] = dates
	d.texts[LocChannelVideoTitles] = titles
	return d
}

func (d *fakeDriver) Navigate(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.navigations = append(d.navigations, url)
	if d.navigateFailures > 0 {
		d.navigateFailures--
		if d.navigateErr != nil {
			return d.navigateErr
		}
		return ErrTransient
	}
	d.currentURL = url
	return nil
}

func (d *fakeDriver) Locate(locator Locator) ([]Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := reverseLocators[locator]
	if err := d.locateErrs[name]; err != nil {
		return nil, err
	}

	if name == LocSearchCandidate || name == LocSuggestedCandidate {
		if len(d.candidates) == 0 {
			return nil, ErrLoadTimeout
		}
		elements := make([]Element, 0, len(d.candidates))
		for _, href := range d.candidates {
			elements = append(elements, &fakeElement{
				driver: d,
				props:  map[string]string{"href": href},
				href:   href,
			})
		}
		return elements, nil
	}

	texts, hasText := d.texts[name]
	if !hasText {
		if _, ok := d.attrs[name]; ok {
			texts = []string{""}
		}
	}
	if len(texts) == 0 {
		return nil, ErrLoadTimeout
	}

	elements := make([]Element, 0, len(texts))
	for _, text := range texts {
		elements = append(elements, &fakeElement{
			driver: d,
			text:   text,
			props:  d.props[name],
			attrs:  d.attrs[name],
		})
	}
	return elements, nil
}

func (d *fakeDriver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentURL, nil
}

func (d *fakeDriver) CurrentTitle() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title, nil
}

func (d *fakeDriver) ScrollToBottom() error {
	d.mu.Lock()
	d.scrolls++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) ScrollBy(dx, dy int) error {
	return nil
}

func (d *fakeDriver) Reload() error {
	d.mu.Lock()
	d.reloads++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closeCount++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount
}

// clickedVideos 被点击过的不同视频ID
func (d *fakeDriver) clickedVideos() map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make(map[string]bool, len(d.clicks))
	for _, href := range d.clicks {
		ids[models.VideoIdentity(href)] = true
	}
	return ids
}

func (d *fakeDriver) navigationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.navigations)
}

type fakeElement struct {
	driver *fakeDriver
	text   string
	props  map[string]string
	attrs  map[string]string
	href   string // 非空时点击跳转
}

func (e *fakeElement) Text() (string, error) {
	return e.text, nil
}

func (e *fakeElement) Attribute(name string) (string, error) {
	return e.attrs[name], nil
}

func (e *fakeElement) Property(name string) (string, error) {
	return e.props[name], nil
}

func (e *fakeElement) Click() error {
	e.driver.mu.Lock()
	covered, wait := e.driver.clickCovered, e.driver.clickTimeout
	e.driver.mu.Unlock()
	if covered {
		time.Sleep(wait)
		return ErrLoadTimeout
	}

	if e.href == "" {
		return nil
	}
	e.driver.mu.Lock()
	defer e.driver.mu.Unlock()
	if e.driver.clickLimit > 0 && len(e.driver.clicks) >= e.driver.clickLimit {
		return ErrSessionLost
	}
	e.driver.currentURL = e.href
	e.driver.clicks = append(e.driver.clicks, e.href)
	return nil
}

func (e *fakeElement) ScrollIntoView() error {
	return nil
}

func (e *fakeElement) Find(locator Locator) (Element, error) {
	if locator != DefaultLocators()[LocCandidateImage] {
		return nil, errors.New("unexpected locator: " + string(locator))
	}
	id := e.href[strings.LastIndex(e.href, "=")+1:]
	return &fakeElement{
		driver: e.driver,
		props:  map[string]string{"src": "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"},
	}, nil
}

func testAgentConfig() AgentConfig {
	return AgentConfig{
		SearchURL:           "https://www.youtube.com/results?search_query=%s",
		PlatformMarker:      "youtube",
		ScrollChance:        0,
		MaxSearchScrolls:    15,
		MaxSuggestedScrolls: 5,
		ActionDelay:         time.Millisecond,
		Retry:               RetryPolicy{MaxAttempts: 3},
		Seed:                42,
	}
}

// stopAfter 第n次调用时返回true
func stopAfter(n int) StopCheck {
	var mu sync.Mutex
	calls := 0
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls >= n
	}
}
