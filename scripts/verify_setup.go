package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  ytcrawl 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	// 检查Go版本
	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)

	if !strings.HasPrefix(goVersion, "go1.23") &&
		!strings.HasPrefix(goVersion, "go1.24") &&
		!strings.HasPrefix(goVersion, "go1.25") {
		fmt.Println("⚠️  警告: 建议使用Go 1.23+版本")
	}

	// 检查操作系统
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器
	if path, found := launcher.LookPath(); found {
		fmt.Printf("✅ 找到浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到Chrome/Chromium - 首次运行时rod会自动下载")
		fmt.Println("   也可以通过 --browser-bin 或 crawl.browser_bin 指定路径")
	}

	// 检查可用内存
	if vm, err := mem.VirtualMemory(); err == nil {
		availableMB := vm.Available / (1024 * 1024)
		fmt.Printf("✅ 可用内存: %d MB (约可运行 %d 个浏览器会话)\n", availableMB, availableMB/300)
		if availableMB < 1024 {
			fmt.Println("⚠️  可用内存不足1GB, 建议减少worker数")
		}
	} else {
		fmt.Printf("⚠️  无法读取内存信息: %v\n", err)
	}

	// 检查项目依赖
	fmt.Println()
	fmt.Println("检查Go模块依赖...")
	if _, err := os.Stat("go.mod"); err == nil {
		fmt.Println("✅ go.mod文件存在")

		fmt.Println("正在下载依赖...")
		cmd := exec.Command("go", "mod", "download")
		if err := cmd.Run(); err != nil {
			fmt.Printf("❌ go mod download失败: %v\n", err)
			allOK = false
		} else {
			fmt.Println("✅ 依赖下载完成")
		}
	} else {
		fmt.Println("❌ go.mod文件不存在")
		allOK = false
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/ytcrawl",
		"internal/core",
		"internal/crawlers",
		"internal/metrics",
		"internal/models",
		"internal/storage",
		"internal/utils",
		"configs",
	}

	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 运行 'go build -o ytcrawl ./cmd/ytcrawl' 构建项目")
		fmt.Println("  2. 运行 './ytcrawl search -s seeds.txt' 开始开放搜索")
		fmt.Println("  3. 运行 './ytcrawl channels' 抓取已发现的频道")
		os.Exit(0)
	} else {
		fmt.Println("❌ 环境验证失败,请解决上述问题。")
		os.Exit(1)
	}
}
