package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iabetor/aeronews/internal/logger"
)

// providerEntry 是一个 Provider 及其名称的组合。
type providerEntry struct {
	name     string
	provider Provider
}

// MultiProvider 实现多 LLM 自动降级。
// 按优先级列表顺序尝试，当前模型请求失败时自动切换到下一个。
type MultiProvider struct {
	entries []providerEntry
	current int // 当前活跃索引
	mu      sync.RWMutex
}

// NewMultiProvider 根据模型配置列表创建 MultiProvider。
func NewMultiProvider(configs []ModelConfig) (*MultiProvider, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("至少需要一个 LLM 模型配置")
	}

	entries := make([]providerEntry, 0, len(configs))
	for _, cfg := range configs {
		name := cfg.Name
		if name == "" {
			name = cfg.Model
		}
		entries = append(entries, providerEntry{
			name:     name,
			provider: NewOpenAIProvider(cfg),
		})
	}

	logger.Infof("[llm] 多模型已初始化，共 %d 个模型：%s",
		len(entries), formatModelNames(entries))

	return &MultiProvider{entries: entries}, nil
}

// CurrentName 返回当前活跃模型的名称。
func (m *MultiProvider) CurrentName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[m.current].name
}

// Chat 实现 Provider 接口。
// 从当前活跃模型开始尝试，失败时切换到下一个，直到所有模型都尝试过。
func (m *MultiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	m.mu.RLock()
	startIdx := m.current
	total := len(m.entries)
	m.mu.RUnlock()

	var lastErr error

	for i := 0; i < total; i++ {
		idx := (startIdx + i) % total
		entry := m.entries[idx]

		logger.Debugf("[llm] 尝试模型 [%s] (索引 %d/%d)", entry.name, idx+1, total)

		reply, err := entry.provider.Chat(ctx, messages)
		if err == nil {
			if idx != startIdx {
				m.mu.Lock()
				m.current = idx
				m.mu.Unlock()
				logger.Infof("[llm] 切换到模型 [%s]", entry.name)
			}
			return reply, nil
		}

		lastErr = err
		logger.Warnf("[llm] 模型 [%s] 请求失败: %v", entry.name, err)

		if shouldFallback(err) {
			logger.Infof("[llm] 模型 [%s] 触发降级，尝试下一个模型", entry.name)
			// 下次请求直接从下一个模型开始
			m.mu.Lock()
			m.current = (idx + 1) % total
			m.mu.Unlock()
			continue
		}

		// 非降级类错误（如上下文取消、鉴权失败），直接返回
		return "", err
	}

	return "", fmt.Errorf("所有 LLM 模型均不可用，最后错误: %w", lastErr)
}

// shouldFallback 判断错误是否应该触发降级到下一个模型。
func shouldFallback(err error) bool {
	if err == nil {
		return false
	}

	switch statusCode(err) {
	case 402, 429, 500, 502, 503:
		return true
	}

	errMsg := strings.ToLower(err.Error())

	fallbackKeywords := []string{
		"insufficient", "balance", "quota",
		"rate limit", "too many requests",
		"余额不足", "额度", "限流",
	}
	for _, kw := range fallbackKeywords {
		if strings.Contains(errMsg, kw) {
			return true
		}
	}

	// 网络/超时类错误
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") ||
		strings.Contains(errMsg, "connection refused") {
		return true
	}

	return false
}

// formatModelNames 格式化模型名称列表用于日志。
func formatModelNames(entries []providerEntry) string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return strings.Join(names, " → ")
}
