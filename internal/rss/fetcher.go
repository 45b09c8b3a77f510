package rss

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/aeronews/internal/logger"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultLimit        = 5
	userAgent           = "aeronews/1.0 RSS Reader"
)

// Fetcher 负责按顺序抓取所有订阅源。
type Fetcher struct {
	sources []Source
	parser  *gofeed.Parser
	client  *http.Client
}

// NewFetcher 创建 RSS 抓取器，timeout 为单个订阅源的超时时间。
func NewFetcher(sources []Source, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		sources: sources,
		parser:  gofeed.NewParser(),
		client:  &http.Client{Timeout: timeout},
	}
}

// Sources 返回订阅源列表。
func (f *Fetcher) Sources() []Source {
	result := make([]Source, len(f.sources))
	copy(result, f.sources)
	return result
}

// FetchLatest 抓取每个订阅源的前 limitPerFeed 篇文章。
// 单个订阅源失败时记录到返回的错误列表并继续处理其余订阅源。
func (f *Fetcher) FetchLatest(ctx context.Context, limitPerFeed int) ([]Article, []error) {
	if limitPerFeed <= 0 {
		limitPerFeed = defaultLimit
	}

	var (
		articles []Article
		errs     []error
	)
	for i, src := range f.sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &FeedUnavailableError{Source: src, Err: err})
			continue
		}
		logger.Infof("[rss] 抓取订阅源 %d/%d: %s", i+1, len(f.sources), src.URL)

		items, err := f.FetchFeed(ctx, src, limitPerFeed)
		if err != nil {
			logger.Warnf("[rss] 抓取 %s 失败: %v", src.Name, err)
			errs = append(errs, err)
			continue
		}
		logger.Infof("[rss] 从 %s 获取 %d 篇文章", src.Name, len(items))
		articles = append(articles, items...)
	}

	logger.Infof("[rss] 共获取 %d 篇文章，%d 个订阅源失败", len(articles), len(errs))
	return articles, errs
}

// FetchFeed 抓取单个订阅源，失败时返回 *FeedUnavailableError。
func (f *Fetcher) FetchFeed(ctx context.Context, src Source, limit int) ([]Article, error) {
	feed, err := f.parseFeed(ctx, src.URL)
	if err != nil {
		return nil, &FeedUnavailableError{Source: src, Err: err}
	}
	return convertItems(feed, src.Name, limit), nil
}

// parseFeed 解析 Feed URL。
func (f *Fetcher) parseFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return f.parser.Parse(resp.Body)
}

// convertItems 将 gofeed 条目转换为 Article，缺失字段填入占位文本。
func convertItems(feed *gofeed.Feed, feedName string, limit int) []Article {
	n := len(feed.Items)
	if n > limit {
		n = limit
	}

	articles := make([]Article, 0, n)
	for _, item := range feed.Items[:n] {
		a := Article{
			Title:     placeholder(strings.TrimSpace(item.Title), NoTitle),
			Link:      placeholder(strings.TrimSpace(item.Link), NoLink),
			Published: NoDate,
			Summary:   NoSummary,
			FeedName:  feedName,
		}

		switch {
		case item.Published != "":
			a.Published = item.Published
		case item.Updated != "":
			a.Published = item.Updated
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.PublishedAt = *item.UpdatedParsed
		}

		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		if s := stripHTML(summary); s != "" {
			a.Summary = s
		}

		articles = append(articles, a)
	}
	return articles
}

func placeholder(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// stripHTML 剥离 HTML 标签和实体，只保留纯文本，连续空白合并为一个空格。
func stripHTML(s string) string {
	if s == "" {
		return ""
	}

	var sb strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if tt == html.StartTagToken && isInvisible(name) {
				skip++
			}
			if isBlock(name) {
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isInvisible(name) && skip > 0 {
				skip--
			}
			if isBlock(name) {
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// isBlock 块级标签在文本中替换为空格，行内标签直接去掉。
func isBlock(tag []byte) bool {
	switch string(tag) {
	case "p", "br", "div", "li", "ul", "ol", "tr", "td", "th", "table",
		"h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "hr", "section", "article":
		return true
	}
	return false
}

func isInvisible(tag []byte) bool {
	switch string(tag) {
	case "script", "style":
		return true
	}
	return false
}
