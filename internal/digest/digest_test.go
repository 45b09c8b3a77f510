package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/iabetor/aeronews/internal/rss"
)

var testNow = time.Date(2026, time.March, 4, 9, 30, 15, 0, time.UTC)

func testArticles() []rss.Article {
	return []rss.Article{
		{
			Title:     "Air Force awards tanker contract",
			Link:      "https://example.com/post/1",
			Published: "Thu, 19 Feb 2026 08:00:00 +0000",
			Summary:   "The service picked a new tanker design.",
		},
		{
			Title:     "Ship <script>alert(1)</script> & sub",
			Link:      "https://example.com/post/2",
			Published: rss.NoDate,
			Summary:   rss.NoSummary,
		},
	}
}

func TestBuildText(t *testing.T) {
	d, err := Build(testArticles(), testNow, Options{})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if d.Subject != defaultSubject {
		t.Errorf("默认主题不正确: %s", d.Subject)
	}
	if d.ArticleCount() != 2 {
		t.Errorf("文章数不正确: %d", d.ArticleCount())
	}

	for _, want := range []string{
		"AEROSPACE & DEFENSE NEWS",
		"Latest Articles - March 04, 2026",
		strings.Repeat("=", 50),
		"1. Air Force awards tanker contract",
		"📅 Published: Thu, 19 Feb 2026 08:00:00 +0000",
		"🔗 Link: https://example.com/post/1",
		"📝 Summary: The service picked a new tanker design.",
		"2. Ship <script>alert(1)</script> & sub",
		footerText,
	} {
		if !strings.Contains(d.Text, want) {
			t.Errorf("纯文本正文缺少 %q", want)
		}
	}
	if strings.Contains(d.Text, "Unsubscribe") {
		t.Error("未个性化的正文不应包含退订链接")
	}
}

func TestBuildHTMLEscapes(t *testing.T) {
	d, err := Build(testArticles(), testNow, Options{Title: "Weekly Brief"})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if !strings.Contains(d.HTML, "<h1>🛰️ Weekly Brief</h1>") {
		t.Error("HTML 缺少标题")
	}
	if !strings.Contains(d.HTML, `href="https://example.com/post/1"`) {
		t.Error("HTML 缺少文章链接")
	}
	if strings.Contains(d.HTML, "<script>alert(1)</script>") {
		t.Error("文章标题应被转义")
	}
	if !strings.Contains(d.HTML, "&lt;script&gt;") {
		t.Error("转义后的标题不存在")
	}
	if !strings.Contains(d.HTML, "Read full article") {
		t.Error("HTML 缺少阅读全文链接")
	}
}

func TestBuildTruncatesSummary(t *testing.T) {
	long := strings.Repeat("é", 301)
	d, err := Build([]rss.Article{{Title: "t", Link: "l", Published: "p", Summary: long}}, testNow, Options{})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	want := strings.Repeat("é", 300) + "..."
	if !strings.Contains(d.Text, "Summary: "+want+"\n") {
		t.Error("摘要应按字符截断到 300 并追加省略号")
	}

	exact := strings.Repeat("a", 300)
	d, _ = Build([]rss.Article{{Summary: exact}}, testNow, Options{})
	if strings.Contains(d.Text, exact+"...") {
		t.Error("恰好 300 个字符时不应追加省略号")
	}
}

func TestBuildIntroMarkdown(t *testing.T) {
	intro := "This week: **hypersonics** and <b>raw</b> [launch](https://example.com/launch)"
	d, err := Build(testArticles(), testNow, Options{Intro: intro})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}
	if !strings.Contains(d.HTML, "<strong>hypersonics</strong>") {
		t.Error("导语应渲染为 HTML")
	}
	if !strings.Contains(d.HTML, `<a href="https://example.com/launch">launch</a>`) {
		t.Error("导语中的链接应被渲染")
	}
	if strings.Contains(d.HTML, "<b>raw</b>") {
		t.Error("导语中的原始 HTML 不应输出")
	}
	if !strings.Contains(d.Text, intro) {
		t.Error("纯文本正文应保留原始 Markdown 导语")
	}
}

func TestPersonalize(t *testing.T) {
	base, err := Build(testArticles(), testNow, Options{})
	if err != nil {
		t.Fatalf("Build 失败: %v", err)
	}

	d, err := base.Personalize("https://news.example.com/", "abc123")
	if err != nil {
		t.Fatalf("Personalize 失败: %v", err)
	}
	link := "https://news.example.com/unsubscribe?token=abc123"
	if !strings.Contains(d.Text, "Unsubscribe: "+link) {
		t.Errorf("纯文本缺少退订链接: %s", d.Text)
	}
	if !strings.Contains(d.HTML, `href="`+link+`"`) {
		t.Error("HTML 缺少退订链接")
	}
	if strings.Contains(base.HTML, "abc123") {
		t.Error("Personalize 不应修改原简报")
	}

	same, _ := base.Personalize("", "abc123")
	if same.HTML != base.HTML {
		t.Error("没有公开地址时应原样返回")
	}
}

func TestUnsubscribeURL(t *testing.T) {
	tests := []struct {
		base, token, want string
	}{
		{"https://a.example", "tok", "https://a.example/unsubscribe?token=tok"},
		{" https://a.example// ", "tok", "https://a.example/unsubscribe?token=tok"},
		{"https://a.example", "a b", "https://a.example/unsubscribe?token=a+b"},
		{"", "tok", ""},
		{"https://a.example", "", ""},
	}
	for _, tc := range tests {
		if got := UnsubscribeURL(tc.base, tc.token); got != tc.want {
			t.Errorf("UnsubscribeURL(%q, %q) = %q, want %q", tc.base, tc.token, got, tc.want)
		}
	}
}

func TestFormatReport(t *testing.T) {
	articles := testArticles()
	articles[0].Summary = strings.Repeat("x", 250)

	report := FormatReport(articles, testNow)
	lines := strings.Split(report, "\n")
	if lines[0] != strings.Repeat("=", 80) || lines[1] != "AEROSPACE & DEFENSE NEWS - LATEST ARTICLES" {
		t.Errorf("报告头部不正确: %q", lines[:2])
	}
	if lines[3] != "Generated on: 2026-03-04 09:30:15" {
		t.Errorf("生成时间不正确: %q", lines[3])
	}
	if lines[4] != "Total articles: 2" {
		t.Errorf("文章总数不正确: %q", lines[4])
	}
	if !strings.Contains(report, "   Summary: "+strings.Repeat("x", 200)+"...\n") {
		t.Error("报告摘要应截断到 200 个字符")
	}
	if !strings.Contains(report, "2. Ship <script>alert(1)</script> & sub") {
		t.Error("报告应包含第二篇文章")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"toolong", 3, "too..."},
		{"航空航天", 2, "航空..."},
		{"", 5, ""},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.limit); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}
