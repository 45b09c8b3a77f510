package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeProvider struct {
	reply    string
	err      error
	messages []Message
}

func (f *fakeProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	f.messages = messages
	return f.reply, f.err
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]Headline{
		{Title: "Navy commissions new destroyer", Link: "https://example.com/destroyer"},
		{Title: "Artemis update", Link: "https://example.com/artemis"},
	})
	for _, want := range []string{
		"- [Navy commissions new destroyer](https://example.com/destroyer)\n- [Artemis update](https://example.com/artemis)",
		"around 200 words",
		"3-4 key highlights",
		`End with "See you next update!"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("提示词缺少 %q:\n%s", want, prompt)
		}
	}
}

func TestSummarize(t *testing.T) {
	fake := &fakeProvider{reply: "\nBig week in aerospace.\n\nSee you next update!\n"}
	s := NewSummarizer(fake)

	text, err := s.Summarize(context.Background(), []Headline{{Title: "A", Link: "https://example.com/a"}})
	if err != nil {
		t.Fatalf("Summarize 失败: %v", err)
	}
	if text != "Big week in aerospace.\n\nSee you next update!" {
		t.Errorf("导语应去除首尾空白，实际 %q", text)
	}
	if len(fake.messages) != 1 || fake.messages[0].Role != RoleUser {
		t.Fatalf("应发送一条 user 消息，实际 %+v", fake.messages)
	}
	if !strings.Contains(fake.messages[0].Content, "[A](https://example.com/a)") {
		t.Errorf("消息应包含新闻链接: %s", fake.messages[0].Content)
	}
}

func TestSummarizeErrors(t *testing.T) {
	s := NewSummarizer(&fakeProvider{reply: "unused"})
	if _, err := s.Summarize(context.Background(), nil); !errors.Is(err, ErrNoHeadlines) {
		t.Errorf("没有新闻时应返回 ErrNoHeadlines，实际 %v", err)
	}

	boom := errors.New("boom")
	s = NewSummarizer(&fakeProvider{err: boom})
	if _, err := s.Summarize(context.Background(), []Headline{{Title: "A"}}); !errors.Is(err, boom) {
		t.Errorf("应透传提供者错误，实际 %v", err)
	}
}
