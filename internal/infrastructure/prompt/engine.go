package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ngoclaw/aichat/internal/domain/valueobject"
)

//go:embed personalities.yaml
var defaultCatalogue []byte

// sectionSeparator 分隔各提示段
const sectionSeparator = "\n\n---\n\n"

// Catalogue 提示词目录
type Catalogue struct {
	Base          string            `yaml:"base"`
	Personalities map[string]string `yaml:"personalities"`
	Intents       map[string]string `yaml:"intents"`
	Complexity    map[string]string `yaml:"complexity"`
}

// merge 用 o 中非空的条目覆盖 c
func (c *Catalogue) merge(o Catalogue) {
	if strings.TrimSpace(o.Base) != "" {
		c.Base = o.Base
	}
	mergeMap(&c.Personalities, o.Personalities)
	mergeMap(&c.Intents, o.Intents)
	mergeMap(&c.Complexity, o.Complexity)
}

func mergeMap(dst *map[string]string, src map[string]string) {
	if *dst == nil {
		*dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if strings.TrimSpace(v) != "" {
			(*dst)[k] = v
		}
	}
}

// ParseCatalogue 解析 YAML 目录
func ParseCatalogue(data []byte) (Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("parse prompt catalogue: %w", err)
	}
	return c, nil
}

// section 一个带优先级的提示段，优先级小的在前
type section struct {
	priority int
	text     string
}

// Engine 组装系统提示词，实现 service.SystemPrompter
type Engine struct {
	mu        sync.RWMutex
	catalogue Catalogue
	cache     map[string]string
	override  string
	logger    *zap.Logger
}

// NewEngine 加载内置目录，overrideFile 非空时叠加外部文件
func NewEngine(overrideFile string, logger *zap.Logger) (*Engine, error) {
	e := &Engine{override: overrideFile, logger: logger}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload 重新读取目录并清空缓存
func (e *Engine) Reload() error {
	cat, err := ParseCatalogue(defaultCatalogue)
	if err != nil {
		return err
	}
	if e.override != "" {
		data, err := os.ReadFile(e.override)
		if err != nil {
			return fmt.Errorf("read personalities file: %w", err)
		}
		extra, err := ParseCatalogue(data)
		if err != nil {
			return err
		}
		cat.merge(extra)
	}

	e.mu.Lock()
	e.catalogue = cat
	e.cache = make(map[string]string)
	e.mu.Unlock()

	e.logger.Debug("Prompt catalogue loaded",
		zap.String("override", e.override),
		zap.Int("personalities", len(cat.Personalities)),
		zap.Int("intents", len(cat.Intents)),
	)
	return nil
}

// SystemPrompt 按人格、意图和会话设置组装系统提示词
func (e *Engine) SystemPrompt(personality valueobject.Personality, category valueobject.IntentCategory, settings valueobject.ConversationSettings) string {
	key := cacheKey(personality, category, settings)

	e.mu.RLock()
	if cached, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return cached
	}
	cat := e.catalogue
	e.mu.RUnlock()

	out := assemble(cat, personality, category, settings)

	e.mu.Lock()
	e.cache[key] = out
	e.mu.Unlock()
	return out
}

func cacheKey(p valueobject.Personality, c valueobject.IntentCategory, s valueobject.ConversationSettings) string {
	return strings.Join([]string{string(p), string(c), s.Language, s.Topic, string(s.Complexity)}, "|")
}

func assemble(cat Catalogue, p valueobject.Personality, c valueobject.IntentCategory, s valueobject.ConversationSettings) string {
	sections := []section{{priority: 0, text: cat.Base}}

	style, ok := cat.Personalities[string(p)]
	if !ok {
		style = cat.Personalities[string(valueobject.PersonalityFriendly)]
	}
	sections = append(sections, section{priority: 10, text: style})
	sections = append(sections, section{priority: 20, text: cat.Intents[string(c)]})
	sections = append(sections, section{priority: 30, text: contextSection(cat, s)})

	sort.SliceStable(sections, func(i, j int) bool { return sections[i].priority < sections[j].priority })

	parts := make([]string, 0, len(sections))
	for _, sec := range sections {
		if text := strings.TrimSpace(sec.text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, sectionSeparator)
}

func contextSection(cat Catalogue, s valueobject.ConversationSettings) string {
	var lines []string
	if lang := strings.TrimSpace(s.Language); lang != "" && !strings.EqualFold(lang, "en") {
		lines = append(lines, fmt.Sprintf("Reply in the language with code %q unless the user writes in another language.", lang))
	}
	if topic := strings.TrimSpace(s.Topic); topic != "" {
		lines = append(lines, fmt.Sprintf("This conversation is about: %s.", topic))
	}
	if hint := cat.Complexity[string(s.Complexity)]; hint != "" {
		lines = append(lines, strings.TrimSpace(hint))
	}
	return strings.Join(lines, "\n")
}
