// Package llm 通过 OpenAI 兼容接口为简报生成导语。
package llm

import "context"

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message 表示与 LLM 对话中的一条消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider 定义 LLM 后端接口。
type Provider interface {
	// Chat 将对话消息发送给 LLM，返回完整的回复文本。
	Chat(ctx context.Context, messages []Message) (string, error)
}
