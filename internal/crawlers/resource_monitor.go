package crawlers

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 根据可用内存和CPU计算浏览器会话上限,在启动新会话前检查资源
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 以下函数便于测试替换
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	cpuPercent    func(interval time.Duration, percpu bool) ([]float64, error)
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 安全保留内存(字节)
	SessionMemoryUsage  int64 // 单个浏览器会话平均内存消耗(字节)
	CPULoadThreshold    int   // CPU负载阈值(%), >=200视为禁用
	MaxSessionsLimit    int   // 绝对最大会话数
}

// DefaultResourceMonitorConfig 默认配置
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		SessionMemoryUsage:  300 * 1024 * 1024,
		CPULoadThreshold:    95,
		MaxSessionsLimit:    32,
	}
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 // 系统总内存(字节)
	AvailableMemory int64  // 扣除安全保留后的可用内存(字节)
	SafetyReserve   int64  // 安全保留内存(字节)
	MemoryPressure  string // 内存压力等级
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	defaults := DefaultResourceMonitorConfig()
	if config.SessionMemoryUsage <= 0 {
		config.SessionMemoryUsage = defaults.SessionMemoryUsage
	}
	if config.MaxSessionsLimit <= 0 {
		config.MaxSessionsLimit = defaults.MaxSessionsLimit
	}
	if config.CPULoadThreshold <= 0 {
		config.CPULoadThreshold = defaults.CPULoadThreshold
	}

	return &ResourceMonitor{
		config:        config,
		virtualMemory: mem.VirtualMemory,
		cpuPercent:    cpu.Percent,
	}
}

// availableMemory 系统可用内存减去安全保留
func (rm *ResourceMonitor) availableMemory() (total uint64, available int64, err error) {
	vmStat, err := rm.virtualMemory()
	if err != nil {
		return 0, 0, fmt.Errorf("获取系统内存失败: %w", err)
	}
	return vmStat.Total, int64(vmStat.Available) - rm.config.SafetyReserveMemory, nil
}

// CalculateMaxSessions 计算当前允许的最大浏览器会话数
// 取内存上限、CPU核数和配置上限中的最小值,至少为1
func (rm *ResourceMonitor) CalculateMaxSessions() int {
	result := rm.config.MaxSessionsLimit
	if cpus := runtime.NumCPU(); cpus < result {
		result = cpus
	}

	_, available, err := rm.availableMemory()
	if err != nil {
		log.Warn().Err(err).Msg("无法计算内存上限,仅按CPU核数限制")
	} else if byMemory := int(available / rm.config.SessionMemoryUsage); byMemory < result {
		result = byMemory
	}

	if result < 1 {
		result = 1
	}
	return result
}

// ClampWorkers 将请求的并发数限制在资源上限内
func (rm *ResourceMonitor) ClampWorkers(requested int) int {
	limit := rm.CalculateMaxSessions()
	if requested > limit {
		log.Warn().Msgf("请求的并发数%d超过资源上限%d,已自动调整", requested, limit)
		return limit
	}
	return requested
}

// CheckResourceAvailability 检查当前资源是否允许启动新的浏览器会话
// 返回canCreate(是否允许创建)和reason(不允许时的原因)
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	_, available, err := rm.availableMemory()
	if err != nil {
		log.Warn().Err(err).Msg("资源检查失败,允许创建")
		return true, ""
	}

	if available < rm.config.SessionMemoryUsage {
		availableMB := available / (1024 * 1024)
		log.Warn().Msgf("可用内存不足(当前%dMB),浏览器会话创建受限", availableMB)
		return false, fmt.Sprintf("内存不足(当前%dMB)", availableMB)
	}

	if rm.config.CPULoadThreshold < 200 {
		percentages, err := rm.cpuPercent(100*time.Millisecond, false)
		if err != nil || len(percentages) == 0 {
			log.Warn().Err(err).Msg("获取CPU使用率失败")
			return true, ""
		}
		if percentages[0] > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", percentages[0])
		}
	}

	return true, ""
}

// GetMemoryStatus 获取当前内存状态
func (rm *ResourceMonitor) GetMemoryStatus() (MemoryStatus, error) {
	total, available, err := rm.availableMemory()
	if err != nil {
		return MemoryStatus{}, err
	}

	var pressure string
	availableMB := available / (1024 * 1024)
	switch {
	case availableMB < 200:
		pressure = "emergency"
	case availableMB < 300:
		pressure = "critical"
	case availableMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     total,
		AvailableMemory: available,
		SafetyReserve:   rm.config.SafetyReserveMemory,
		MemoryPressure:  pressure,
	}, nil
}
