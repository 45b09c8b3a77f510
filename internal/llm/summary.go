package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoHeadlines 没有可供总结的新闻。
var ErrNoHeadlines = errors.New("没有可供总结的新闻")

// Headline 参与生成导语的一条新闻。
type Headline struct {
	Title string
	Link  string
}

const summaryPrompt = `You are an assistant that writes a professional newsletter.
Create a short, engaging newsletter (around 200 words) summarizing the following aerospace and defense news:
%s

Structure:
- Short intro line about the week in aerospace & defense
- 3-4 key highlights
- End with "See you next update!"`

// Summarizer 根据新闻标题生成 Markdown 导语。
type Summarizer struct {
	provider Provider
}

// NewSummarizer 创建导语生成器。
func NewSummarizer(provider Provider) *Summarizer {
	return &Summarizer{provider: provider}
}

// Summarize 生成一段约 200 词的导语：开场一句、3 到 4 条要点、固定结束语。
func (s *Summarizer) Summarize(ctx context.Context, headlines []Headline) (string, error) {
	if len(headlines) == 0 {
		return "", ErrNoHeadlines
	}
	reply, err := s.provider.Chat(ctx, []Message{
		{Role: RoleUser, Content: BuildPrompt(headlines)},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// BuildPrompt 把新闻列表拼成 Markdown 链接列表并填入提示词。
func BuildPrompt(headlines []Headline) string {
	var sb strings.Builder
	for i, h := range headlines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- [%s](%s)", h.Title, h.Link)
	}
	return fmt.Sprintf(summaryPrompt, sb.String())
}
