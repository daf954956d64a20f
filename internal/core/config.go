package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/ytcrawl/internal/crawlers"
	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Crawl    models.CrawlConfig `mapstructure:"crawl"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Output   OutputConfig       `mapstructure:"output"`
	Resource ResourceConfig     `mapstructure:"resource"`
	Metrics  MetricsConfig      `mapstructure:"metrics"`

	// 定位表覆盖项, 名称 -> XPath
	Locators map[string]string `mapstructure:"locators"`
	// 浏览器会话的额外请求头
	Headers map[string]string `mapstructure:"headers"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	VideoFile        string `mapstructure:"video_file"`
	ChannelFile      string `mapstructure:"channel_file"`
	AutosaveInterval int    `mapstructure:"autosave_interval"` // 秒, 0表示只在结束时保存
}

// ResourceConfig 资源限制配置(MB)
type ResourceConfig struct {
	SafetyReserveMemory int `mapstructure:"safety_reserve_memory"`
	SessionMemoryUsage  int `mapstructure:"session_memory_usage"`
	CPULoadThreshold    int `mapstructure:"cpu_load_threshold"`
	MaxSessionsLimit    int `mapstructure:"max_sessions_limit"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // 为空时不启动 /metrics
}

// LoadConfig 加载配置文件
// 未找到配置文件时使用默认值; 环境变量 YTCRAWL_<SECTION>_<KEY> 覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ytcrawl"))
		}
	}

	v.SetEnvPrefix("YTCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	crawl := models.DefaultCrawlConfig()
	v.SetDefault("crawl.workers", crawl.Workers)
	v.SetDefault("crawl.pool_size", crawl.PoolSize)
	v.SetDefault("crawl.headless", crawl.Headless)
	v.SetDefault("crawl.browser_bin", crawl.BrowserBin)
	v.SetDefault("crawl.load_timeout", crawl.LoadTimeout)
	v.SetDefault("crawl.action_delay_ms", crawl.ActionDelayMs)
	v.SetDefault("crawl.retry_attempts", crawl.RetryAttempts)
	v.SetDefault("crawl.retry_delay", crawl.RetryDelay)
	v.SetDefault("crawl.scroll_chance", crawl.ScrollChance)
	v.SetDefault("crawl.max_search_scrolls", crawl.MaxSearchScrolls)
	v.SetDefault("crawl.max_suggested_scrolls", crawl.MaxSuggestedScrolls)
	v.SetDefault("crawl.flush_interval", crawl.FlushInterval)
	v.SetDefault("crawl.poll_interval_ms", crawl.PollIntervalMs)
	v.SetDefault("crawl.status_interval", crawl.StatusInterval)
	v.SetDefault("crawl.search_url", crawl.SearchURL)
	v.SetDefault("crawl.platform_marker", crawl.PlatformMarker)

	logging := utils.DefaultLogConfig()
	v.SetDefault("logging.level", logging.Level)
	v.SetDefault("logging.log_dir", logging.LogDir)
	v.SetDefault("logging.rotation.max_size", logging.MaxSize)
	v.SetDefault("logging.rotation.max_backups", logging.MaxBackups)
	v.SetDefault("logging.rotation.max_age", logging.MaxAge)
	v.SetDefault("logging.rotation.compress", logging.Compress)

	v.SetDefault("output.video_file", "data/yt_video_data.csv")
	v.SetDefault("output.channel_file", "data/yt_channel_data.csv")
	v.SetDefault("output.autosave_interval", 60)

	resource := crawlers.DefaultResourceMonitorConfig()
	v.SetDefault("resource.safety_reserve_memory", resource.SafetyReserveMemory/(1024*1024))
	v.SetDefault("resource.session_memory_usage", resource.SessionMemoryUsage/(1024*1024))
	v.SetDefault("resource.cpu_load_threshold", resource.CPULoadThreshold)
	v.SetDefault("resource.max_sessions_limit", resource.MaxSessionsLimit)

	v.SetDefault("metrics.addr", "")
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// ResourceMonitorConfig 转换为资源监控器配置
func (c *Config) ResourceMonitorConfig() crawlers.ResourceMonitorConfig {
	const mb = 1024 * 1024
	return crawlers.ResourceMonitorConfig{
		SafetyReserveMemory: int64(c.Resource.SafetyReserveMemory) * mb,
		SessionMemoryUsage:  int64(c.Resource.SessionMemoryUsage) * mb,
		CPULoadThreshold:    c.Resource.CPULoadThreshold,
		MaxSessionsLimit:    c.Resource.MaxSessionsLimit,
	}
}

// ResolvedLocators 默认定位表合并配置中的覆盖项
// 未知名称会记录警告但仍然保留
func (c *Config) ResolvedLocators() crawlers.Locators {
	defaults := crawlers.DefaultLocators()
	for name := range c.Locators {
		if _, ok := defaults[name]; !ok {
			utils.Warnf("未知的定位表名称: %s", name)
		}
	}
	return defaults.WithOverrides(c.Locators)
}

// CLIOverrides 命令行参数,零值表示未指定
type CLIOverrides struct {
	Workers     int
	Headless    *bool
	BrowserBin  string
	LogLevel    string
	MetricsAddr string
	Output      string
	Autosave    int // -1表示未指定
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先于配置文件
func (c *Config) MergeCLIFlags(mode models.CrawlMode, o CLIOverrides) {
	if o.Workers > 0 {
		if mode == models.ModeChannels {
			c.Crawl.PoolSize = o.Workers
		} else {
			c.Crawl.Workers = o.Workers
		}
	}
	if o.Headless != nil {
		c.Crawl.Headless = *o.Headless
	}
	if o.BrowserBin != "" {
		c.Crawl.BrowserBin = o.BrowserBin
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.MetricsAddr != "" {
		c.Metrics.Addr = o.MetricsAddr
	}
	if o.Output != "" {
		if mode == models.ModeChannels {
			c.Output.ChannelFile = o.Output
		} else {
			c.Output.VideoFile = o.Output
		}
	}
	if o.Autosave >= 0 {
		c.Output.AutosaveInterval = o.Autosave
	}
}

// OutputFile 当前模式的输出文件
func (c *Config) OutputFile(mode models.CrawlMode) string {
	if mode == models.ModeChannels {
		return c.Output.ChannelFile
	}
	return c.Output.VideoFile
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	if c.Output.AutosaveInterval < 0 {
		return fmt.Errorf("自动保存间隔不能为负数")
	}
	if c.Output.VideoFile == "" || c.Output.ChannelFile == "" {
		return fmt.Errorf("输出文件不能为空")
	}
	return nil
}
