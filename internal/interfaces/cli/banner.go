package cli

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"
)

// brand colors
var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

var logoLines = []string{
	"  █████  ██  ██████ ██   ██  █████  ████████",
	" ██   ██ ██ ██      ██   ██ ██   ██    ██   ",
	" ███████ ██ ██      ███████ ███████    ██   ",
	" ██   ██ ██ ██      ██   ██ ██   ██    ██   ",
	" ██   ██ ██  ██████ ██   ██ ██   ██    ██   ",
}

// 渐变色 cyan → blue → violet
var logoGradient = []lipgloss.Color{
	lipgloss.Color("#00FFFF"),
	lipgloss.Color("#00CFFF"),
	lipgloss.Color("#009FFF"),
	lipgloss.Color("#006FFF"),
	lipgloss.Color("#5F5FFF"),
}

// BannerInfo serve 启动横幅中的动态信息
type BannerInfo struct {
	Version   string
	Addr      string
	Database  string
	Providers int
	Realtime  string
}

// RenderBanner 返回带渐变 logo 的启动横幅
func RenderBanner(info BannerInfo, width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	greenStyle := lipgloss.NewStyle().Foreground(colorGreen)
	versionStyle := lipgloss.NewStyle().Foreground(colorDimCyan)

	var logo string
	if width >= 46 {
		for i, line := range logoLines {
			c := logoGradient[i%len(logoGradient)]
			logo += lipgloss.NewStyle().Foreground(c).Bold(true).Render(line) + "\n"
		}
	} else {
		logo = lipgloss.NewStyle().Foreground(colorCyan).Bold(true).Render(" ◇  A I C H A T") + "\n"
	}

	ver := versionStyle.Render(fmt.Sprintf("  v%s", info.Version))

	providers := greenStyle.Render(fmt.Sprintf("%d configured", info.Providers))
	if info.Providers == 0 {
		providers = lipgloss.NewStyle().Foreground(colorYellow).Render("none (replies will be degraded)")
	}

	line := func(label, value string) string {
		return fmt.Sprintf("  %s %s", labelStyle.Render(label), value)
	}

	return fmt.Sprintf("\n%s%s\n\n%s\n%s\n%s\n%s\n%s\n",
		logo, ver,
		line("Listen   ", valueStyle.Render(info.Addr)),
		line("Database ", valueStyle.Render(info.Database)),
		line("Providers", providers),
		line("Realtime ", valueStyle.Render(info.Realtime)),
		line("Env      ", labelStyle.Render(runtime.GOOS+"/"+runtime.GOARCH)),
	)
}
