// Package subscriber 维护新闻简报的订阅者列表，数据保存在单个 JSON 文件中。
//
// 记录只会被停用，不会被删除。同一个文件同一时间只允许一个进程写入，
// 多进程共享需要外部文件锁或改用数据库。
package subscriber

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/iabetor/aeronews/internal/logger"
)

// tokenLength 退订令牌长度（hex 字符），32 位即 128 bit。
const tokenLength = 32

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Subscriber 单个订阅者记录。
type Subscriber struct {
	Email            string     `json:"email"`
	Name             *string    `json:"name"`
	SubscribedAt     time.Time  `json:"subscribed_at"`
	Active           bool       `json:"active"`
	UnsubscribeToken string     `json:"unsubscribe_token"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at,omitempty"`
}

// DisplayName 返回订阅者名字，未填写时为空字符串。
func (s Subscriber) DisplayName() string {
	if s.Name == nil {
		return ""
	}
	return *s.Name
}

// UnmarshalJSON 兼容旧版脚本写出的不带时区的 ISO8601 时间。
func (s *Subscriber) UnmarshalJSON(data []byte) error {
	var raw struct {
		Email            string  `json:"email"`
		Name             *string `json:"name"`
		SubscribedAt     string  `json:"subscribed_at"`
		Active           bool    `json:"active"`
		UnsubscribeToken string  `json:"unsubscribe_token"`
		UnsubscribedAt   *string `json:"unsubscribed_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// 单条记录的时间无法解析时只丢弃该字段，不影响整个文件的加载
	subscribedAt, err := parseTimestamp(raw.SubscribedAt)
	if err != nil {
		logger.Warnf("[subscriber] %s 的 subscribed_at 无效，按空值处理: %v", raw.Email, err)
	}
	*s = Subscriber{
		Email:            raw.Email,
		Name:             raw.Name,
		SubscribedAt:     subscribedAt,
		Active:           raw.Active,
		UnsubscribeToken: raw.UnsubscribeToken,
	}
	if raw.UnsubscribedAt != nil && *raw.UnsubscribedAt != "" {
		t, err := parseTimestamp(*raw.UnsubscribedAt)
		if err != nil {
			logger.Warnf("[subscriber] %s 的 unsubscribed_at 无效，按空值处理: %v", raw.Email, err)
		} else {
			s.UnsubscribedAt = &t
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q", v)
}

// Stats 订阅统计。
type Stats struct {
	Active      int        `json:"active_subscribers"`
	Total       int        `json:"total_subscribers"`
	Inactive    int        `json:"inactive_subscribers"`
	LastUpdated *time.Time `json:"last_updated"`
}

// NormalizeEmail 去除首尾空白并转小写，所有比较和存储都基于该结果。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail 判断（已规范化的）邮箱格式是否合法。
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func normalizeName(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}

// document 是持久化文件的完整结构。
type document struct {
	Subscribers []Subscriber `json:"subscribers"`
	LastUpdated time.Time    `json:"last_updated"`
	TotalCount  int          `json:"total_count"`
}
