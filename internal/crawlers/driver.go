package crawlers

// Locator 元素定位表达式(XPath)
type Locator string

// Element 页面元素
type Element interface {
	Text() (string, error)
	// Attribute 读取HTML属性,属性不存在时返回空字符串
	Attribute(name string) (string, error)
	// Property 读取DOM属性(如解析后的href/src)
	Property(name string) (string, error)
	Click() error
	ScrollIntoView() error
	// Find 在元素内部查找第一个匹配的子元素
	Find(locator Locator) (Element, error)
}

// Driver 单个浏览器会话的页面操作能力
// 同一个Driver只由一个agent使用
type Driver interface {
	Navigate(url string) error
	// Locate 等待至少一个元素出现(最长为加载超时)后返回全部匹配元素
	// 超时返回ErrLoadTimeout,元素失效返回ErrTransient
	Locate(locator Locator) ([]Element, error)
	CurrentURL() (string, error)
	CurrentTitle() (string, error)
	ScrollToBottom() error
	ScrollBy(dx, dy int) error
	Reload() error
	Close() error
}

// 定位表名称
const (
	LocSearchCandidate    = "search_thumbnail"
	LocSuggestedCandidate = "suggested_thumbnail"
	LocCandidateImage     = "candidate_image"
	LocViewCount          = "view_count"
	LocDate               = "date"
	LocTitle              = "video_title"
	LocDescription        = "video_description"
	LocChannelNameLink    = "channel_name_link"
	LocSubscriberCount    = "subscriber_count"
	LocLikes              = "likes"
	LocChannelVideoViews  = "video_page_views"
	LocChannelVideoDates  = "video_page_upload_dates"
	LocChannelVideoTitles = "video_page_titles"
)

// Locators 逻辑名称到定位表达式的映射
type Locators map[string]Locator

// DefaultLocators 默认的YouTube页面定位表
func DefaultLocators() Locators {
	return Locators{
		LocSearchCandidate:    `//a[@id="thumbnail"]`,
		LocSuggestedCandidate: `//div[@id="related"][contains(@class, "ytd-watch-flexy")]/*/*/*/*/*/a[@id="thumbnail"]`,
		LocCandidateImage:     `.//img`,
		LocViewCount:          `//span[contains(@class, "view-count")]`,
		LocDate:               `(//div[@id="date"]|//div[@id="info-strings"])/yt-formatted-string`,
		LocTitle:              `//h1[contains(@class, "title")]/yt-formatted-string`,
		LocDescription:        `//div[@id="description"]/yt-formatted-string`,
		LocChannelNameLink:    `//ytd-channel-name[@id="channel-name"]/div/div/yt-formatted-string/a`,
		LocSubscriberCount:    `//yt-formatted-string[@id="owner-sub-count"]`,
		LocLikes:              `//yt-formatted-string[@id="text"][contains(@aria-label, " likes")][1]`,
		LocChannelVideoViews:  `//*[@id="metadata-line"]/span[1]`,
		LocChannelVideoDates:  `//*[@id="metadata-line"]/span[2]`,
		LocChannelVideoTitles: `//*[@id="video-title"]`,
	}
}

// WithOverrides 返回合并了覆盖项的新定位表,空值忽略
func (l Locators) WithOverrides(overrides map[string]string) Locators {
	merged := make(Locators, len(l)+len(overrides))
	for name, loc := range l {
		merged[name] = loc
	}
	for name, loc := range overrides {
		if loc != "" {
			merged[name] = Locator(loc)
		}
	}
	return merged
}

// Get 返回定位表达式,缺失时回退到默认值
func (l Locators) Get(name string) Locator {
	if loc, ok := l[name]; ok && loc != "" {
		return loc
	}
	return DefaultLocators()[name]
}
