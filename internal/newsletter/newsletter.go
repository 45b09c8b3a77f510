// Package newsletter 编排一次完整的简报发送：抓取、排版、逐个投递、记录历史。
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iabetor/aeronews/internal/archive"
	"github.com/iabetor/aeronews/internal/config"
	"github.com/iabetor/aeronews/internal/digest"
	"github.com/iabetor/aeronews/internal/llm"
	"github.com/iabetor/aeronews/internal/logger"
	"github.com/iabetor/aeronews/internal/mail"
	"github.com/iabetor/aeronews/internal/rss"
	"github.com/iabetor/aeronews/internal/subscriber"
)

var (
	// ErrNoArticles 所有订阅源都没有返回文章。
	ErrNoArticles = errors.New("没有抓取到任何文章")
	// ErrNoRecipients 没有活跃订阅者，也没有配置兜底收件人。
	ErrNoRecipients = errors.New("没有收件人")
	// ErrAllFailed 所有收件人都投递失败。
	ErrAllFailed = errors.New("所有收件人投递失败")
)

// ArticleSource 提供最新文章，由 *rss.Fetcher 实现。
type ArticleSource interface {
	FetchLatest(ctx context.Context, limitPerFeed int) ([]rss.Article, []error)
}

// SubscriberSource 提供活跃订阅者，由 *subscriber.Store 实现。
type SubscriberSource interface {
	Active() []subscriber.Subscriber
}

// RunRecorder 保存运行记录，由 *archive.DB 实现。
type RunRecorder interface {
	RecordRun(ctx context.Context, run *archive.Run) error
}

// Summarizer 根据新闻标题生成导语，由 *llm.Summarizer 实现。
type Summarizer interface {
	Summarize(ctx context.Context, headlines []llm.Headline) (string, error)
}

// Config 服务配置。
type Config struct {
	From         string
	Fallback     []string
	PublicURL    string
	LimitPerFeed int
	Digest       digest.Options
}

// ConfigFrom 从应用配置构造服务配置。
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		From:         cfg.Mail.From,
		Fallback:     splitAddresses(cfg.Mail.To),
		PublicURL:    cfg.Digest.PublicURL,
		LimitPerFeed: cfg.Digest.LimitPerFeed,
		Digest: digest.Options{
			Subject: cfg.Digest.Subject,
			Title:   cfg.Digest.Title,
			Intro:   cfg.Digest.Intro,
		},
	}
}

// Service 简报发送服务。
type Service struct {
	cfg         Config
	articles    ArticleSource
	subscribers SubscriberSource
	transport   mail.Transport
	recorder    RunRecorder
	summarizer  Summarizer
	now         func() time.Time
}

// New 创建服务。subscribers 和 recorder 可以为 nil。
func New(cfg Config, articles ArticleSource, subscribers SubscriberSource, transport mail.Transport, recorder RunRecorder) *Service {
	return &Service{
		cfg:         cfg,
		articles:    articles,
		subscribers: subscribers,
		transport:   transport,
		recorder:    recorder,
		now:         time.Now,
	}
}

// SetSummarizer 启用 AI 导语。生成失败时回退到配置中的导语。
func (s *Service) SetSummarizer(summarizer Summarizer) {
	s.summarizer = summarizer
}

// RunOptions 单次运行参数。
type RunOptions struct {
	// DryRun 只抓取和排版，不发送邮件。
	DryRun bool
	// Recipients 非空时只发给这些地址，忽略订阅者列表。
	Recipients []string
}

// RunReport 运行结果。
type RunReport struct {
	Run        archive.Run
	Articles   []rss.Article
	FeedErrors []error
	Digest     digest.Digest
	// Summary AI 生成的导语，未启用或生成失败时为空。
	Summary string
	// Report 控制台报告文本。
	Report string
}

// Sent 返回成功投递数。
func (r RunReport) Sent() int {
	return r.Run.Sent()
}

// Failed 返回失败投递数。
func (r RunReport) Failed() int {
	return len(r.Run.Deliveries) - r.Run.Sent()
}

type recipient struct {
	email string
	token string
}

// Run 执行一次简报发送。单个收件人失败不会中断其余收件人。
func (s *Service) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	started := s.now()
	var report RunReport

	articles, feedErrs := s.articles.FetchLatest(ctx, s.cfg.LimitPerFeed)
	report.Articles = articles
	report.FeedErrors = feedErrs
	if len(articles) == 0 {
		return report, ErrNoArticles
	}
	report.Report = digest.FormatReport(articles, started)

	digestOpts := s.cfg.Digest
	if summary := s.summarize(ctx, articles); summary != "" {
		report.Summary = summary
		digestOpts.Intro = summary
	}
	d, err := digest.Build(articles, started, digestOpts)
	if err != nil {
		return report, err
	}
	report.Digest = d
	report.Run = archive.Run{
		StartedAt:    started,
		ArticleCount: len(articles),
		FeedFailures: len(feedErrs),
		DryRun:       opts.DryRun,
	}

	if opts.DryRun {
		logger.Infof("[newsletter] 试运行：%d 篇文章，不发送邮件", len(articles))
		s.record(ctx, &report.Run)
		return report, nil
	}

	recipients := s.recipients(opts.Recipients)
	if len(recipients) == 0 {
		return report, ErrNoRecipients
	}
	logger.Infof("[newsletter] 向 %d 个收件人发送 %d 篇文章", len(recipients), len(articles))

	var firstErr error
	for _, rcpt := range recipients {
		if err := ctx.Err(); err != nil {
			firstErr = err
			break
		}

		err := s.deliver(ctx, d, rcpt)
		delivery := archive.Delivery{Recipient: rcpt.email, Status: archive.StatusSent}
		if err != nil {
			logger.Warnf("[newsletter] 发送给 %s 失败: %v", rcpt.email, err)
			delivery.Status = archive.StatusFailed
			delivery.ErrorKind = errorKind(err)
			delivery.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		report.Run.Deliveries = append(report.Run.Deliveries, delivery)

		// 缺少凭证对所有收件人都一样，没必要继续
		if errors.Is(err, mail.ErrMissingCredentials) {
			break
		}
	}

	s.record(ctx, &report.Run)
	logger.Infof("[newsletter] 发送完成：成功 %d，失败 %d", report.Sent(), report.Failed())

	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, ctxErr
	}
	if report.Sent() == 0 {
		return report, fmt.Errorf("%w: %w", ErrAllFailed, firstErr)
	}
	return report, nil
}

// summarize 调用 AI 生成导语，失败只记录警告。
func (s *Service) summarize(ctx context.Context, articles []rss.Article) string {
	if s.summarizer == nil {
		return ""
	}
	headlines := make([]llm.Headline, 0, len(articles))
	for _, a := range articles {
		headlines = append(headlines, llm.Headline{Title: a.Title, Link: a.Link})
	}
	summary, err := s.summarizer.Summarize(ctx, headlines)
	if err != nil {
		logger.Warnf("[newsletter] 生成 AI 导语失败，使用配置中的导语: %v", err)
		return ""
	}
	logger.Infof("[newsletter] 已生成 AI 导语（%d 字符）", len(summary))
	return summary
}

func (s *Service) deliver(ctx context.Context, d digest.Digest, rcpt recipient) error {
	personal, err := d.Personalize(s.cfg.PublicURL, rcpt.token)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, mail.Message{
		From:    s.cfg.From,
		To:      []string{rcpt.email},
		Subject: personal.Subject,
		Text:    personal.Text,
		HTML:    personal.HTML,
	})
}

// recipients 依次使用显式列表、活跃订阅者、兜底收件人，按邮箱去重。
func (s *Service) recipients(explicit []string) []recipient {
	tokens := make(map[string]string)
	var active []subscriber.Subscriber
	if s.subscribers != nil {
		active = s.subscribers.Active()
		for _, sub := range active {
			tokens[sub.Email] = sub.UnsubscribeToken
		}
	}

	var emails []string
	switch {
	case len(explicit) > 0:
		emails = explicit
	case len(active) > 0:
		for _, sub := range active {
			emails = append(emails, sub.Email)
		}
	default:
		emails = s.cfg.Fallback
	}

	seen := make(map[string]bool)
	var result []recipient
	for _, e := range emails {
		key := subscriber.NormalizeEmail(e)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, recipient{email: strings.TrimSpace(e), token: tokens[key]})
	}
	return result
}

func (s *Service) record(ctx context.Context, run *archive.Run) {
	if s.recorder == nil {
		return
	}
	// 取消的运行也要留下记录
	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warnf("[newsletter] 保存运行记录失败: %v", err)
	}
}

func errorKind(err error) string {
	if k := mail.KindOf(err); k != 0 {
		return k.String()
	}
	if errors.Is(err, mail.ErrMissingCredentials) {
		return "missing_credentials"
	}
	return "error"
}

func splitAddresses(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			result = append(result, p)
		}
	}
	return result
}
