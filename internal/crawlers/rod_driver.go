package crawlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodDriverConfig 浏览器会话配置
type RodDriverConfig struct {
	Headless    bool
	BrowserBin  string        // 为空时由launcher自动查找或下载
	LoadTimeout time.Duration // 元素等待超时
	Headers     http.Header   // 额外请求头, User-Agent单独设置
}

// RodDriver 基于go-rod的Driver实现,每个实例独占一个浏览器进程
type RodDriver struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *rod.Page
	loadTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// LaunchRodDriver 启动浏览器并打开一个隐身标签页
func LaunchRodDriver(cfg RodDriverConfig) (*RodDriver, error) {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 15 * time.Second
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("mute-audio").
		Set("lang", "en-US")
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	d := &RodDriver{
		launcher:    l,
		browser:     browser,
		page:        page,
		loadTimeout: cfg.LoadTimeout,
	}
	if err := d.applyHeaders(cfg.Headers); err != nil {
		_ = d.Close()
		return nil, err
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return d, nil
}

func (d *RodDriver) applyHeaders(headers http.Header) error {
	if len(headers) == 0 {
		return nil
	}
	headers = headers.Clone()

	if ua := headers.Get("User-Agent"); ua != "" {
		if err := d.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      ua,
			AcceptLanguage: headers.Get("Accept-Language"),
		}); err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}
	// 由浏览器自行管理
	headers.Del("User-Agent")
	headers.Del("Accept-Encoding")

	if len(headers) == 0 {
		return nil
	}
	if _, err := d.page.SetExtraHeaders(models.HeaderPairs(headers)); err != nil {
		return fmt.Errorf("设置请求头失败: %w", err)
	}
	return nil
}

func (d *RodDriver) timed() *rod.Page {
	return d.page.Timeout(d.loadTimeout)
}

func (d *RodDriver) Navigate(url string) error {
	p := d.timed()
	if err := p.Navigate(url); err != nil {
		return classifyRodError(err)
	}
	return classifyRodError(p.WaitLoad())
}

func (d *RodDriver) Locate(locator Locator) ([]Element, error) {
	// ElementX会重试直到第一个元素出现或超时
	if _, err := d.timed().ElementX(string(locator)); err != nil {
		return nil, classifyRodError(err)
	}

	elements, err := d.page.ElementsX(string(locator))
	if err != nil {
		return nil, classifyRodError(err)
	}

	result := make([]Element, 0, len(elements))
	for _, el := range elements {
		result = append(result, &rodElement{el: el, timeout: d.loadTimeout})
	}
	return result, nil
}

func (d *RodDriver) CurrentURL() (string, error) {
	info, err := d.timed().Info()
	if err != nil {
		return "", classifyRodError(err)
	}
	return info.URL, nil
}

func (d *RodDriver) CurrentTitle() (string, error) {
	info, err := d.timed().Info()
	if err != nil {
		return "", classifyRodError(err)
	}
	return info.Title, nil
}

func (d *RodDriver) ScrollToBottom() error {
	_, err := d.timed().Eval(`() => window.scrollTo(0, document.documentElement.scrollHeight)`)
	return classifyRodError(err)
}

func (d *RodDriver) ScrollBy(dx, dy int) error {
	_, err := d.timed().Eval(`(x, y) => window.scrollBy(x, y)`, dx, dy)
	return classifyRodError(err)
}

func (d *RodDriver) Reload() error {
	p := d.timed()
	if err := p.Reload(); err != nil {
		return classifyRodError(err)
	}
	return classifyRodError(p.WaitLoad())
}

// Close 关闭标签页、浏览器并清理浏览器进程,可重复调用
func (d *RodDriver) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		if err := d.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭标签页失败: %w", err))
		}
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭浏览器失败: %w", err))
		}
		d.launcher.Kill()
		d.launcher.Cleanup()
		d.closeErr = errors.Join(errs...)
		utils.Debugf("浏览器已关闭")
	})
	return d.closeErr
}

// rodElement 所有操作都受加载超时约束
// 被遮挡的元素上Click会一直等待可交互,超时后以ErrLoadTimeout返回
type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) timed() *rod.Element {
	return e.el.Timeout(e.timeout)
}

func (e *rodElement) Text() (string, error) {
	text, err := e.timed().Text()
	return text, classifyRodError(err)
}

func (e *rodElement) Attribute(name string) (string, error) {
	value, err := e.timed().Attribute(name)
	if err != nil {
		return "", classifyRodError(err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func (e *rodElement) Property(name string) (string, error) {
	value, err := e.timed().Property(name)
	if err != nil {
		return "", classifyRodError(err)
	}
	return value.Str(), nil
}

func (e *rodElement) Click() error {
	return classifyRodError(e.timed().Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) ScrollIntoView() error {
	return classifyRodError(e.timed().ScrollIntoView())
}

func (e *rodElement) Find(locator Locator) (Element, error) {
	child, err := e.timed().ElementX(string(locator))
	if err != nil {
		return nil, classifyRodError(err)
	}
	return &rodElement{el: child.Context(e.el.GetContext()), timeout: e.timeout}, nil
}

// classifyRodError 将rod/cdp错误映射为crawlers的错误类型
func classifyRodError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrLoadTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}

	var (
		notFound        *rod.ElementNotFoundError
		objectNotFound  *rod.ObjectNotFoundError
		notInteractable *rod.NotInteractableError
		invisible       *rod.InvisibleShapeError
		covered         *rod.CoveredError
		navigation      *rod.NavigationError
	)
	if errors.As(err, &notFound) || errors.As(err, &objectNotFound) ||
		errors.As(err, &notInteractable) || errors.As(err, &invisible) ||
		errors.As(err, &covered) || errors.As(err, &navigation) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	if isSessionLost(err) {
		return fmt.Errorf("%w: %v", ErrSessionLost, err)
	}
	return err
}

func isSessionLost(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"use of closed network connection",
		"target closed",
		"session with given id not found",
		"no target with given id",
		"websocket: close",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
