package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RecoveryAshes/ytcrawl/internal/core"
	"github.com/RecoveryAshes/ytcrawl/internal/metrics"
	"github.com/RecoveryAshes/ytcrawl/internal/models"
	"github.com/RecoveryAshes/ytcrawl/internal/storage"
	"github.com/RecoveryAshes/ytcrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// 浏览器参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件
	headless       bool
	browserBin     string
	metricsAddr    string

	// 运行参数
	seedFile  string
	inputFile string
	workers   int
	output    string
	autosave  int
	duration  time.Duration
)

// appConfig 在PersistentPreRunE中加载并合并命令行参数
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "ytcrawl",
	Short: "YouTube视频与频道元数据爬取工具",
	Long: `ytcrawl - 基于浏览器自动化的YouTube元数据爬取工具

支持两种运行模式:
  • search   开放搜索: 从种子关键词出发,沿推荐视频随机游走并记录视频元数据
  • channels 频道模式: 读取视频结果中的频道,抓取每个频道的视频列表

运行示例:
  ytcrawl search -s seeds.txt -n 4 -o data/yt_video_data.csv
  ytcrawl channels -i data/yt_video_data.csv -n 8 -o data/yt_channel_data.csv

  # 自定义请求头
  ytcrawl search -s seeds.txt -H "Accept-Language: de-DE"

  # 验证配置文件
  ytcrawl --validate-config

按 Ctrl+C 停止: 所有agent会被终止,已收集的结果合并保存后退出。

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		overrides := core.CLIOverrides{
			Workers:     workers,
			BrowserBin:  browserBin,
			LogLevel:    logLevel,
			MetricsAddr: metricsAddr,
			Output:      output,
			Autosave:    autosave,
		}
		if cmd.Flags().Changed("headless") {
			h := headless
			overrides.Headless = &h
		}
		config.MergeCLIFlags(commandMode(cmd), overrides)

		// 初始化日志系统
		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !validateConfig {
			return cmd.Help()
		}

		utils.Info("🔍 验证配置...")
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}
		headerManager, err := core.NewHeaderManager(appConfig.Headers, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}
		if err := headerManager.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		// 显示合并后的头部(脱敏)
		safeHeaders := core.RedactHeaders(headerManager.GetMergedHeaders())
		utils.Info("✅ 配置验证通过!")
		utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
		for name, value := range safeHeaders {
			utils.Infof("  %s: %s", name, value)
		}
		locators := appConfig.ResolvedLocators()
		utils.Infof("页面定位表 (%d项)", len(locators))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "开放搜索: 从种子关键词出发随机游走抓取视频元数据",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateSearchFlags(seedFile, appConfig.Crawl.Workers, appConfig.Output.AutosaveInterval, duration); err != nil {
			return err
		}

		terms, err := utils.ReadLinesFromFile(seedFile)
		if err != nil {
			return fmt.Errorf("读取种子文件失败: %w", err)
		}
		utils.Infof("📄 从 %s 读取到 %d 个关键词", seedFile, len(terms))

		crawler, err := newCrawler()
		if err != nil {
			return err
		}

		ctx, stop := runContext(cmd.Context())
		defer stop()

		report, err := crawler.RunSearch(ctx, terms)
		printStats(report)
		if err != nil {
			return fmt.Errorf("开放搜索失败: %w", err)
		}

		utils.Info("✨ 开放搜索任务完成!")
		return nil
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "频道模式: 抓取视频结果中每个频道的视频列表",
	RunE: func(cmd *cobra.Command, args []string) error {
		input := inputFile
		if input == "" {
			input = appConfig.Output.VideoFile
		}
		if err := ValidateChannelFlags(input, appConfig.Crawl.PoolSize, appConfig.Output.AutosaveInterval, duration); err != nil {
			return err
		}

		targets, err := storage.LoadChannelTargets(input)
		if err != nil {
			return fmt.Errorf("读取频道列表失败: %w", err)
		}
		utils.Infof("📄 从 %s 读取到 %d 个频道", input, len(targets))

		crawler, err := newCrawler()
		if err != nil {
			return err
		}

		ctx, stop := runContext(cmd.Context())
		defer stop()

		report, err := crawler.RunChannels(ctx, targets)
		printStats(report)
		if err != nil {
			return fmt.Errorf("频道抓取失败: %w", err)
		}

		utils.Info("✨ 频道抓取任务完成!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ytcrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("基于go-rod的YouTube元数据爬取工具")
	},
}

func commandMode(cmd *cobra.Command) models.CrawlMode {
	if cmd.Name() == string(models.ModeChannels) {
		return models.ModeChannels
	}
	return models.ModeSearch
}

// newCrawler 创建头部管理器和主爬取器,按需启动指标服务
func newCrawler() (*core.Crawler, error) {
	headerManager, err := core.NewHeaderManager(appConfig.Headers, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return nil, fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	crawler, err := core.NewCrawler(appConfig, headerManager)
	if err != nil {
		return nil, fmt.Errorf("创建爬取器失败: %w", err)
	}

	if appConfig.Metrics.Addr != "" {
		startMetricsServer(appConfig.Metrics.Addr)
	}
	return crawler, nil
}

// runContext Ctrl+C或SIGTERM时取消,设置了--duration时到期取消
func runContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if duration <= 0 {
		return ctx, stopSignals
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	return ctx, func() {
		cancel()
		stopSignals()
	}
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		utils.Infof("📈 指标服务监听 %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error(err, "指标服务异常退出")
		}
	}()
}

func printStats(report *models.RunReport) {
	if report == nil {
		return
	}
	stats := report.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("✅ 运行模式: %s\n", report.Mode)
	fmt.Printf("✅ 任务数: %d\n", stats.Tasks)
	fmt.Printf("✅ 收集记录数: %d\n", stats.Records)
	fmt.Printf("✅ 文件总行数(去重): %d\n", stats.Saved)
	fmt.Printf("🔁 worker重启次数: %d\n", stats.Respawns)
	if report.Mode == models.ModeChannels {
		fmt.Printf("✅ 成功/跳过: %d/%d\n", stats.Recorded, stats.Skipped)
		fmt.Printf("❌ 失败频道: %d\n", stats.Failed)
	}
	if report.FatalError != "" {
		fmt.Printf("❌ 致命错误: %s\n", report.FatalError)
	}
	fmt.Printf("📦 输出文件: %s\n", report.OutputFile)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
	fmt.Println("==================================================")
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// 浏览器参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.PersistentFlags().StringVar(&browserBin, "browser-bin", "", "Chrome/Chromium可执行文件路径 (默认自动查找或下载)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus指标监听地址, 如 :9100")

	// 开放搜索参数
	searchCmd.Flags().StringVarP(&seedFile, "seeds", "s", "seeds.txt", "种子关键词文件,每行一个")
	searchCmd.Flags().IntVarP(&workers, "workers", "n", 0, "并发worker数 (默认使用配置文件)")
	searchCmd.Flags().StringVarP(&output, "output", "o", "", "视频结果CSV文件")
	searchCmd.Flags().IntVar(&autosave, "autosave", -1, "自动保存间隔(秒), 0表示关闭")
	searchCmd.Flags().DurationVar(&duration, "duration", 0, "运行时长, 如 2h (默认运行到Ctrl+C)")

	// 频道模式参数
	channelsCmd.Flags().StringVarP(&inputFile, "input", "i", "", "视频结果CSV文件 (默认使用配置中的视频输出文件)")
	channelsCmd.Flags().IntVarP(&workers, "workers", "n", 0, "agent池大小 (默认使用配置文件)")
	channelsCmd.Flags().StringVarP(&output, "output", "o", "", "频道结果CSV文件")
	channelsCmd.Flags().IntVar(&autosave, "autosave", -1, "自动保存间隔(秒), 0表示关闭")
	channelsCmd.Flags().DurationVar(&duration, "duration", 0, "最长运行时长 (默认直到全部频道完成)")

	// 添加子命令
	rootCmd.AddCommand(searchCmd, channelsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		utils.CloseLogger()
		os.Exit(1)
	}
	utils.CloseLogger()
}
