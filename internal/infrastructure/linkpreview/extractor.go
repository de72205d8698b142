// Package linkpreview 从 Markdown 消息中提取链接，生成不需要抓取远端页面的预览
package linkpreview

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

// MaxPreviews 每条消息最多的预览数
const MaxPreviews = 3

// Extractor 链接提取器
type Extractor struct {
	md  goldmark.Markdown
	max int
}

// NewExtractor 创建提取器，启用 Linkify 以识别裸 URL
func NewExtractor() *Extractor {
	return &Extractor{
		md:  goldmark.New(goldmark.WithExtensions(extension.Linkify)),
		max: MaxPreviews,
	}
}

// Extract 按出现顺序返回去重后的 http(s) 链接，代码块中的链接忽略
func (e *Extractor) Extract(content string) []valueobject.LinkPreview {
	if !strings.Contains(content, "http") {
		return nil
	}
	src := []byte(content)
	doc := e.md.Parser().Parse(text.NewReader(src))

	var out []valueobject.LinkPreview
	seen := make(map[string]bool)
	add := func(raw, title string) {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || seen[u.String()] {
			return
		}
		seen[u.String()] = true
		if title == "" {
			title = u.Host
		}
		out = append(out, valueobject.LinkPreview{URL: u.String(), Title: title})
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if len(out) >= e.max {
			return ast.WalkStop, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			add(string(node.Destination), strings.TrimSpace(plainText(node, src)))
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			add(string(node.URL(src)), "")
		}
		return ast.WalkContinue, nil
	})
	return out
}

func plainText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
