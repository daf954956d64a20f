package crawlers

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1024 * 1024

func newFakeMonitor(availableMB uint64, cpuLoad float64) *ResourceMonitor {
	rm := NewResourceMonitor(ResourceMonitorConfig{
		SafetyReserveMemory: 100 * mb,
		SessionMemoryUsage:  300 * mb,
		CPULoadThreshold:    90,
		MaxSessionsLimit:    64,
	})
	rm.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16 * 1024 * mb, Available: availableMB * mb}, nil
	}
	rm.cpuPercent = func(time.Duration, bool) ([]float64, error) {
		return []float64{cpuLoad}, nil
	}
	return rm
}

func TestCalculateMaxSessions(t *testing.T) {
	// (1000-100)/300 = 3
	rm := newFakeMonitor(1000, 10)
	want := 3
	if cpus := runtime.NumCPU(); cpus < want {
		want = cpus
	}
	assert.Equal(t, want, rm.CalculateMaxSessions())

	// 内存不足时至少为1
	assert.Equal(t, 1, newFakeMonitor(50, 10).CalculateMaxSessions())

	assert.Equal(t, 1, newFakeMonitor(1000, 10).ClampWorkers(1))
	assert.Equal(t, want, newFakeMonitor(1000, 10).ClampWorkers(50))
}

func TestCheckResourceAvailability(t *testing.T) {
	tests := []struct {
		name        string
		availableMB uint64
		cpuLoad     float64
		want        bool
	}{
		{"资源充足", 2000, 20, true},
		{"内存不足", 300, 20, false},
		{"CPU过载", 2000, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := newFakeMonitor(tt.availableMB, tt.cpuLoad).CheckResourceAvailability()
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCheckResourceAvailabilityMemoryError(t *testing.T) {
	rm := newFakeMonitor(0, 0)
	rm.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("不可用")
	}
	ok, _ := rm.CheckResourceAvailability()
	assert.True(t, ok, "无法读取内存时不阻止创建")

	_, err := rm.GetMemoryStatus()
	assert.Error(t, err)
}

func TestGetMemoryStatus(t *testing.T) {
	tests := []struct {
		availableMB uint64
		want        string
	}{
		{250, "emergency"},
		{350, "critical"},
		{550, "warning"},
		{4000, "normal"},
	}
	for _, tt := range tests {
		status, err := newFakeMonitor(tt.availableMB, 0).GetMemoryStatus()
		require.NoError(t, err)
		assert.Equal(t, tt.want, status.MemoryPressure, "available=%dMB", tt.availableMB)
		assert.Equal(t, int64(tt.availableMB-100)*mb, status.AvailableMemory)
	}
}
