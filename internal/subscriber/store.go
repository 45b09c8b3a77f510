package subscriber

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iabetor/aeronews/internal/logger"
)

// maxTokenAttempts 生成令牌时遇到碰撞的最大重试次数。
const maxTokenAttempts = 8

// Store 订阅者持久化存储。
//
// 每次修改先写盘，写盘成功后才更新内存，因此写失败不会让内存和文件不一致。
type Store struct {
	mu               sync.RWMutex
	filePath         string
	subscribers      []Subscriber
	lastUpdated      time.Time
	allowResubscribe bool

	now      func() time.Time
	randRead func([]byte) (int, error)
}

// Option 配置 Store。
type Option func(*Store)

// WithResubscribe 允许已退订的邮箱重新订阅（重新激活原记录）。
func WithResubscribe(allow bool) Option {
	return func(s *Store) { s.allowResubscribe = allow }
}

// WithClock 替换时间源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open 创建订阅者存储并加载已有数据。
// 文件不存在时从空列表开始；文件损坏时记录错误日志并同样从空列表开始。
func Open(filePath string, opts ...Option) (*Store, error) {
	if filePath == "" {
		return nil, fmt.Errorf("订阅者文件路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	s := &Store{
		filePath: filePath,
		now:      time.Now,
		randRead: rand.Read,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		logger.Errorf("[subscriber] 加载订阅者数据失败（将使用空列表）: %v", err)
		s.subscribers = make([]Subscriber, 0)
		s.lastUpdated = time.Time{}
	}
	return s, nil
}

// Path 返回持久化文件路径。
func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.subscribers = make([]Subscriber, 0)
			return nil
		}
		return err
	}

	var doc struct {
		Subscribers []Subscriber `json:"subscribers"`
		LastUpdated string       `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.subscribers = doc.Subscribers
	if s.subscribers == nil {
		s.subscribers = make([]Subscriber, 0)
	}
	s.lastUpdated, _ = parseTimestamp(doc.LastUpdated)
	return nil
}

// save 将 records 整体写入临时文件后 rename 覆盖目标文件。
func (s *Store) save(records []Subscriber, at time.Time) error {
	doc := document{
		Subscribers: records,
		LastUpdated: at,
		TotalCount:  len(records),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// commit 持久化 next，成功后替换内存状态。调用方需持有写锁。
func (s *Store) commit(next []Subscriber, at time.Time) error {
	if err := s.save(next, at); err != nil {
		return err
	}
	s.subscribers = next
	s.lastUpdated = at
	return nil
}

func (s *Store) clone() []Subscriber {
	next := make([]Subscriber, len(s.subscribers), len(s.subscribers)+1)
	copy(next, s.subscribers)
	return next
}

func (s *Store) indexByEmail(email string) int {
	for i := range s.subscribers {
		if s.subscribers[i].Email == email {
			return i
		}
	}
	return -1
}

func (s *Store) indexByToken(token string) int {
	for i := range s.subscribers {
		if s.subscribers[i].UnsubscribeToken == token {
			return i
		}
	}
	return -1
}

// Subscribe 订阅新闻简报。
func (s *Store) Subscribe(email, name string) (Subscriber, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return Subscriber{}, &Error{Kind: KindInvalidFormat, Email: email}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if i := s.indexByEmail(email); i >= 0 {
		existing := s.subscribers[i]
		if existing.Active || !s.allowResubscribe {
			return Subscriber{}, &Error{Kind: KindAlreadySubscribed, Email: email}
		}
		// 重新激活：保留原令牌和首次订阅时间
		next := s.clone()
		next[i].Active = true
		next[i].UnsubscribedAt = nil
		if n := normalizeName(name); n != nil {
			next[i].Name = n
		}
		if err := s.commit(next, now); err != nil {
			logger.Errorf("[subscriber] 保存重新订阅失败: %v", err)
			return Subscriber{}, &Error{Kind: KindPersistence, Email: email, Err: err}
		}
		logger.Infof("[subscriber] 订阅者重新激活: %s", email)
		return next[i], nil
	}

	token, err := s.uniqueToken(email, now)
	if err != nil {
		return Subscriber{}, &Error{Kind: KindPersistence, Email: email, Err: err}
	}
	sub := Subscriber{
		Email:            email,
		Name:             normalizeName(name),
		SubscribedAt:     now,
		Active:           true,
		UnsubscribeToken: token,
	}

	next := append(s.clone(), sub)
	if err := s.commit(next, now); err != nil {
		logger.Errorf("[subscriber] 保存订阅失败: %v", err)
		return Subscriber{}, &Error{Kind: KindPersistence, Email: email, Err: err}
	}
	logger.Infof("[subscriber] 新增订阅者: %s", email)
	return sub, nil
}

// Unsubscribe 按邮箱或退订令牌退订，同时提供时以邮箱为准。
// 对已退订的记录重复退订不会报错，但会刷新退订时间。
func (s *Store) Unsubscribe(email, token string) (Subscriber, error) {
	email = NormalizeEmail(email)
	if email == "" && token == "" {
		return Subscriber{}, ErrMissingIdentifier
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var i int
	if email != "" {
		i = s.indexByEmail(email)
	} else {
		i = s.indexByToken(token)
	}
	if i < 0 {
		return Subscriber{}, &Error{Kind: KindNotFound, Email: email}
	}

	now := s.now()
	next := s.clone()
	next[i].Active = false
	unsubscribedAt := now
	next[i].UnsubscribedAt = &unsubscribedAt

	if err := s.commit(next, now); err != nil {
		logger.Errorf("[subscriber] 保存退订失败: %v", err)
		return Subscriber{}, &Error{Kind: KindPersistence, Email: next[i].Email, Err: err}
	}
	logger.Infof("[subscriber] 订阅者已退订: %s", next[i].Email)
	return next[i], nil
}

// uniqueToken 生成一个不与历史记录重复的退订令牌。调用方需持有锁。
func (s *Store) uniqueToken(email string, now time.Time) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := generateToken(s.randRead, email, now)
		if err != nil {
			return "", fmt.Errorf("生成退订令牌失败: %w", err)
		}
		if s.indexByToken(token) < 0 {
			return token, nil
		}
		logger.Warnf("[subscriber] 退订令牌碰撞，重新生成 (第 %d 次)", attempt+1)
	}
	return "", fmt.Errorf("生成退订令牌失败: 连续 %d 次碰撞", maxTokenAttempts)
}

// generateToken 由随机盐、邮箱和时间戳做 SHA-256，取前 32 个 hex 字符。
func generateToken(randRead func([]byte) (int, error), email string, now time.Time) (string, error) {
	salt := make([]byte, 16)
	if _, err := randRead(salt); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(email + now.Format(time.RFC3339Nano) + hex.EncodeToString(salt)))
	return hex.EncodeToString(sum[:])[:tokenLength], nil
}

// IsSubscribed 判断邮箱是否为活跃订阅者。
func (s *Store) IsSubscribed(email string) bool {
	email = NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexByEmail(email)
	return i >= 0 && s.subscribers[i].Active
}

// Lookup 按退订令牌查找订阅者。
func (s *Store) Lookup(token string) (Subscriber, bool) {
	if token == "" {
		return Subscriber{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexByToken(token); i >= 0 {
		return s.subscribers[i], true
	}
	return Subscriber{}, false
}

// Active 返回所有活跃订阅者，保持存储顺序。
func (s *Store) Active() []Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.Active {
			result = append(result, sub)
		}
	}
	return result
}

// All 返回全部订阅者（含已退订）。
func (s *Store) All() []Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Subscriber, len(s.subscribers))
	copy(result, s.subscribers)
	return result
}

// Count 返回活跃订阅者数量。
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.subscribers {
		if sub.Active {
			n++
		}
	}
	return n
}

// Stats 返回订阅统计，LastUpdated 为最近一次成功写盘的时间，从未写盘时为 nil。
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active := 0
	for _, sub := range s.subscribers {
		if sub.Active {
			active++
		}
	}
	stats := Stats{
		Active:   active,
		Total:    len(s.subscribers),
		Inactive: len(s.subscribers) - active,
	}
	if !s.lastUpdated.IsZero() {
		lastUpdated := s.lastUpdated
		stats.LastUpdated = &lastUpdated
	}
	return stats
}

// Export 导出订阅者，includeInactive 为 false 时只导出活跃订阅者。
func (s *Store) Export(includeInactive bool) []Subscriber {
	if includeInactive {
		return s.All()
	}
	return s.Active()
}
