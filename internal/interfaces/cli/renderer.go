package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ngoclaw/aichat/internal/application/usecase"
	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// Renderer 终端输出：markdown 回复、意图分类、恢复结果
type Renderer struct {
	glamour *glamour.TermRenderer
	width   int
}

// NewRenderer 按终端宽度创建渲染器
func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &Renderer{
		glamour: r,
		width:   width,
	}
}

// RenderMarkdown 渲染 markdown，失败时原样返回
func (r *Renderer) RenderMarkdown(md string) string {
	if r.glamour == nil {
		return md
	}
	out, err := r.glamour.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// RenderClassification 显示意图与置信度
func (r *Renderer) RenderClassification(text string, intent valueobject.IntentCategory, confidence float64) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	intentStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)

	confStyle := lipgloss.NewStyle().Foreground(colorGreen)
	if confidence < 0.5 {
		confStyle = confStyle.Foreground(colorYellow)
	}

	return fmt.Sprintf("  %s %s\n  %s %s\n  %s %s",
		labelStyle.Render("Input     "), truncate(text, r.width-14),
		labelStyle.Render("Intent    "), intentStyle.Render(string(intent)),
		labelStyle.Render("Confidence"), confStyle.Render(fmt.Sprintf("%.2f", confidence)),
	)
}

// RenderExchange 渲染一轮问答：回复正文 + 生成信息
func (r *Renderer) RenderExchange(res *usecase.ExchangeResult) string {
	if res == nil || res.AIMessage == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(r.RenderMarkdown(res.AIMessage.DisplayContent()))
	b.WriteString("\n\n")

	infoStyle := lipgloss.NewStyle().Foreground(colorGray)
	if gen := res.AIMessage.Metadata().Generation; gen != nil {
		parts := []string{string(gen.Intent)}
		if gen.Model != "" {
			parts = append(parts, gen.Model)
		}
		if gen.TokensUsed > 0 {
			parts = append(parts, fmt.Sprintf("%d tokens", gen.TokensUsed))
		}
		parts = append(parts, formatDuration(time.Duration(gen.ResponseTimeMs)*time.Millisecond))
		if gen.Error {
			parts = append(parts, lipgloss.NewStyle().Foreground(colorRed).Render("degraded"))
		}
		b.WriteString("  " + infoStyle.Render(strings.Join(parts, " · ")) + "\n")
	}
	if res.Conversation != nil {
		b.WriteString("  " + infoStyle.Render("conversation "+res.Conversation.ID()) + "\n")
	}
	return b.String()
}

// RenderRecovery 显示启动恢复结果
func (r *Renderer) RenderRecovery(n int, err error) string {
	if err != nil {
		icon := lipgloss.NewStyle().Foreground(colorRed).Render("✗")
		return fmt.Sprintf("  %s recovery failed: %v", icon, err)
	}
	icon := lipgloss.NewStyle().Foreground(colorGreen).Render("✓")
	return fmt.Sprintf("  %s %d pending turn(s) resumed", icon, n)
}

func truncate(s string, max int) string {
	if max < 8 {
		max = 8
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
