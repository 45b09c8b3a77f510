// Package rss 从固定的订阅源列表抓取最新文章。
package rss

import (
	"fmt"
	"time"
)

// 字段缺失时使用的占位文本。
const (
	NoTitle   = "No title available"
	NoLink    = "No link available"
	NoDate    = "No date available"
	NoSummary = "No summary available"
)

// Source 一个订阅源。
type Source struct {
	Name string
	URL  string
}

// Article 一篇文章。Published 保留订阅源中的原始日期文本。
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Published   string    `json:"published"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Summary     string    `json:"summary"`
	FeedName    string    `json:"feed_name"`
}

// FeedUnavailableError 单个订阅源抓取失败，不影响其他订阅源。
type FeedUnavailableError struct {
	Source Source
	Err    error
}

func (e *FeedUnavailableError) Error() string {
	return fmt.Sprintf("订阅源 %s 不可用: %v", e.Source.Name, e.Err)
}

func (e *FeedUnavailableError) Unwrap() error { return e.Err }
