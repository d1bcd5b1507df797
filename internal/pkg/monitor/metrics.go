/**
 * 进程与主机指标采集
 * @author: sun977
 * @date: 2025.10.22
 * @description: 基于gopsutil采集控制台进程运行时长、内存、CPU以及主机资源使用率，供心跳记录使用
 * @func: GetProcessStats, GetSystemMetrics, GetHostInfo
 */
package monitor

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"auroraagent/internal/pkg/logger"
)

// HostInfo 主机静态信息
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Arch            string `json:"arch"`
	CPUCores        int    `json:"cpu_cores"`
	MemoryTotal     uint64 `json:"memory_total"`
	DiskTotal       uint64 `json:"disk_total"`
}

// SystemMetrics 主机资源使用率
type SystemMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	DiskUsage   float64 `json:"disk_usage"`
}

// ProcessStats 控制台进程指标
type ProcessStats struct {
	PID        int32     `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	RSSBytes   uint64    `json:"rss_bytes"`
	CPUPercent float64   `json:"cpu_percent"`
	Threads    int32     `json:"threads"`
	Goroutines int       `json:"goroutines"`
}

var (
	selfOnce sync.Once
	self     *process.Process
	selfErr  error
)

func selfProcess() (*process.Process, error) {
	selfOnce.Do(func() {
		self, selfErr = process.NewProcess(int32(os.Getpid()))
	})
	return self, selfErr
}

// GetProcessStats 采集当前进程指标；单项失败时记录日志并保留零值
func GetProcessStats() *ProcessStats {
	stats := &ProcessStats{
		PID:        int32(os.Getpid()),
		Goroutines: runtime.NumGoroutine(),
	}

	p, err := selfProcess()
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetProcessStats", "Failed to open self process: "+err.Error(), logger.WarnLevel, nil)
		return stats
	}

	if ms, err := p.CreateTime(); err == nil {
		stats.StartedAt = time.UnixMilli(ms)
	}
	if memInfo, err := p.MemoryInfo(); err != nil {
		logger.LogSystemEvent("Monitor", "GetProcessStats", "Failed to get process memory: "+err.Error(), logger.WarnLevel, nil)
	} else {
		stats.RSSBytes = memInfo.RSS
	}
	if pct, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = pct
	}
	if threads, err := p.NumThreads(); err == nil {
		stats.Threads = threads
	}
	return stats
}

// GetSystemMetrics 获取主机资源使用率
// CPU 使用率取与上次调用之间的平均值，不阻塞采样
func GetSystemMetrics() (*SystemMetrics, error) {
	metrics := &SystemMetrics{}

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetSystemMetrics", "Failed to get CPU usage: "+err.Error(), logger.WarnLevel, nil)
	} else if len(cpuPercent) > 0 {
		metrics.CPUUsage = cpuPercent[0]
	}

	vMem, err := mem.VirtualMemory()
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetSystemMetrics", "Failed to get Memory usage: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.MemoryUsage = vMem.UsedPercent
	}

	dUsage, err := disk.Usage(rootPath())
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetSystemMetrics", "Failed to get Disk usage: "+err.Error(), logger.WarnLevel, nil)
	} else {
		metrics.DiskUsage = dUsage.UsedPercent
	}

	return metrics, nil
}

// GetHostInfo 获取主机静态信息
func GetHostInfo() (*HostInfo, error) {
	info := &HostInfo{}

	hInfo, err := host.Info()
	if err != nil {
		logger.LogSystemEvent("Monitor", "GetHostInfo", "Failed to get host info: "+err.Error(), logger.WarnLevel, nil)
	} else {
		info.Hostname = hInfo.Hostname
		info.OS = hInfo.OS
		info.Platform = hInfo.Platform
		info.PlatformVersion = hInfo.PlatformVersion
		info.KernelVersion = hInfo.KernelVersion
		info.Arch = hInfo.KernelArch
	}
	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	if info.Arch == "" {
		info.Arch = runtime.GOARCH
	}

	info.CPUCores = runtime.NumCPU()
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		info.CPUCores = cores
	}

	if vMem, err := mem.VirtualMemory(); err != nil {
		logger.LogSystemEvent("Monitor", "GetHostInfo", "Failed to get Memory info: "+err.Error(), logger.WarnLevel, nil)
	} else {
		info.MemoryTotal = vMem.Total
	}

	if dUsage, err := disk.Usage(rootPath()); err != nil {
		logger.LogSystemEvent("Monitor", "GetHostInfo", "Failed to get Disk info: "+err.Error(), logger.WarnLevel, nil)
	} else {
		info.DiskTotal = dUsage.Total
	}

	return info, nil
}

func rootPath() string {
	if runtime.GOOS == "windows" {
		return "C:"
	}
	return "/"
}
