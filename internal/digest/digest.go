// Package digest 把抓取到的文章排版成邮件正文（纯文本 + HTML）和控制台报告。
package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/iabetor/aeronews/internal/rss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

const (
	emailSummaryLimit  = 300
	reportSummaryLimit = 200

	defaultTitle   = "Aerospace & Defense News"
	defaultSubject = "Latest Aerospace & Defense News"
	footerText     = "Generated automatically from aerospace and defense RSS feeds"
)

// Options 控制邮件的标题和导语。
type Options struct {
	Subject string
	Title   string
	// Intro 为 Markdown 文本，HTML 正文中渲染，纯文本正文中原样保留。
	Intro string
}

// Digest 一封排版好的简报。
type Digest struct {
	Subject string
	Text    string
	HTML    string

	page page
}

// page 是渲染模板用的数据。
type page struct {
	Title          string
	Date           string
	Intro          template.HTML
	IntroText      string
	Articles       []entry
	Footer         string
	UnsubscribeURL string
}

type entry struct {
	Index     int
	Title     string
	Link      string
	Published string
	Summary   string
}

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var emailTemplate = template.Must(template.New("digest").Parse(emailTpl))

// Build 根据文章列表生成简报。
func Build(articles []rss.Article, now time.Time, opts Options) (Digest, error) {
	if opts.Subject == "" {
		opts.Subject = defaultSubject
	}
	if opts.Title == "" {
		opts.Title = defaultTitle
	}

	p := page{
		Title:    opts.Title,
		Date:     now.Format("January 02, 2006"),
		Footer:   footerText,
		Articles: make([]entry, 0, len(articles)),
	}
	if intro := strings.TrimSpace(opts.Intro); intro != "" {
		rendered, err := renderMarkdown(intro)
		if err != nil {
			return Digest{}, fmt.Errorf("渲染导语失败: %w", err)
		}
		p.Intro = rendered
		p.IntroText = intro
	}
	for i, a := range articles {
		p.Articles = append(p.Articles, entry{
			Index:     i + 1,
			Title:     a.Title,
			Link:      a.Link,
			Published: a.Published,
			Summary:   truncate(a.Summary, emailSummaryLimit),
		})
	}

	d := Digest{Subject: opts.Subject, page: p}
	return d.render()
}

// Personalize 返回带退订链接的副本。baseURL 或 token 为空时原样返回。
func (d Digest) Personalize(baseURL, token string) (Digest, error) {
	link := UnsubscribeURL(baseURL, token)
	if link == "" {
		return d, nil
	}
	d.page.UnsubscribeURL = link
	return d.render()
}

// UnsubscribeURL 拼接退订页面地址，baseURL 或 token 为空时返回空字符串。
func UnsubscribeURL(baseURL, token string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || token == "" {
		return ""
	}
	return baseURL + "/unsubscribe?token=" + url.QueryEscape(token)
}

// ArticleCount 返回简报中的文章数。
func (d Digest) ArticleCount() int {
	return len(d.page.Articles)
}

func (d Digest) render() (Digest, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, d.page); err != nil {
		return Digest{}, fmt.Errorf("渲染 HTML 模板失败: %w", err)
	}
	d.HTML = buf.String()
	d.Text = renderText(d.page)
	return d, nil
}

func renderText(p page) string {
	var sb strings.Builder
	sb.WriteString("\n🛰️ " + strings.ToUpper(p.Title) + "\n")
	sb.WriteString("Latest Articles - " + p.Date + "\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	if p.IntroText != "" {
		sb.WriteString(p.IntroText + "\n\n")
	}

	for _, a := range p.Articles {
		fmt.Fprintf(&sb, "\n%d. %s\n", a.Index, a.Title)
		fmt.Fprintf(&sb, "   📅 Published: %s\n", a.Published)
		fmt.Fprintf(&sb, "   🔗 Link: %s\n", a.Link)
		fmt.Fprintf(&sb, "   📝 Summary: %s\n   \n", a.Summary)
	}

	sb.WriteString("\n" + p.Footer + "\n")
	if p.UnsubscribeURL != "" {
		sb.WriteString("Unsubscribe: " + p.UnsubscribeURL + "\n")
	}
	return sb.String()
}

func renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	// goldmark 默认不输出原始 HTML，结果可以直接嵌入模板
	return template.HTML(buf.String()), nil
}

// FormatReport 生成控制台报告，摘要截断到 200 个字符。
func FormatReport(articles []rss.Article, now time.Time) string {
	banner := strings.Repeat("=", 80)
	lines := []string{
		banner,
		"AEROSPACE & DEFENSE NEWS - LATEST ARTICLES",
		banner,
		"Generated on: " + now.Format("2006-01-02 15:04:05"),
		fmt.Sprintf("Total articles: %d", len(articles)),
		"",
	}
	for i, a := range articles {
		lines = append(lines,
			fmt.Sprintf("%d. %s", i+1, a.Title),
			"   Link: "+a.Link,
			"   Published: "+a.Published,
			"   Summary: "+truncate(a.Summary, reportSummaryLimit),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

// truncate 按字符（rune）截断，超出时追加 "..."。
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
