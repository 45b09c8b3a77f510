package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/aeronews/internal/archive"
	"github.com/iabetor/aeronews/internal/config"
	"github.com/iabetor/aeronews/internal/llm"
	"github.com/iabetor/aeronews/internal/logger"
	"github.com/iabetor/aeronews/internal/mail"
	"github.com/iabetor/aeronews/internal/newsletter"
	"github.com/iabetor/aeronews/internal/rss"
	"github.com/iabetor/aeronews/internal/subscriber"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，中断时停止后续投递
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在停止...", sig)
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("aeronews-newsletter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "configs/aeronews.yaml", "配置文件路径")
	dryRun := fs.Bool("dry-run", false, "只抓取并打印报告，不发送邮件")
	to := fs.String("to", "", "逗号分隔的收件人，覆盖订阅者列表")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer logger.Sync()

	sources := make([]rss.Source, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		sources = append(sources, rss.Source{Name: f.Name, URL: f.URL})
	}
	fetcher := rss.NewFetcher(sources, time.Duration(cfg.Digest.FetchTimeout)*time.Second)

	// 订阅者和历史记录不可用时降级运行，收件人回退到 mail.to
	var subscribers newsletter.SubscriberSource
	if store, err := subscriber.Open(cfg.Subscribers.File, subscriber.WithResubscribe(cfg.Subscribers.AllowResubscribe)); err != nil {
		logger.Warnf("[main] 打开订阅者存储失败，仅使用兜底收件人: %v", err)
	} else {
		subscribers = store
	}

	var recorder newsletter.RunRecorder
	if db, err := openArchive(cfg.Archive.Path); err != nil {
		logger.Warnf("[main] 发送记录不可用: %v", err)
	} else {
		defer db.Close()
		recorder = db
	}

	transport := mail.NewSMTPTransport(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  time.Duration(cfg.Mail.Timeout) * time.Second,
	})

	svc := newsletter.New(newsletter.ConfigFrom(cfg), fetcher, subscribers, transport, recorder)
	if cfg.LLM.Enabled() {
		if summarizer, err := newSummarizer(cfg.LLM); err != nil {
			logger.Warnf("[main] AI 导语不可用: %v", err)
		} else {
			svc.SetSummarizer(summarizer)
		}
	}

	fmt.Fprintln(stdout, "🛰️ Fetching latest aerospace & defense news...")
	opts := newsletter.RunOptions{DryRun: *dryRun}
	if *to != "" {
		opts.Recipients = strings.Split(*to, ",")
	}
	report, err := svc.Run(ctx, opts)

	for _, feedErr := range report.FeedErrors {
		fmt.Fprintf(stdout, "❌ %v\n", feedErr)
	}
	if len(report.Articles) > 0 {
		fmt.Fprintf(stdout, "📊 Total articles fetched: %d\n", len(report.Articles))
	}

	if err != nil {
		printFailure(stdout, report, err)
		return 1
	}

	if *dryRun {
		if report.Summary != "" {
			fmt.Fprintln(stdout, "🤖 AI summary:")
			fmt.Fprintln(stdout, report.Summary)
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stdout, report.Report)
		return 0
	}
	for _, d := range report.Run.Deliveries {
		if d.Status == archive.StatusFailed {
			fmt.Fprintf(stdout, "❌ %s: %s\n", d.Recipient, d.Error)
		}
	}
	fmt.Fprintf(stdout, "✅ Newsletter sent to %d recipients (%d failed)\n", report.Sent(), report.Failed())
	return 0
}

// newSummarizer 按主模型加备用模型的顺序创建导语生成器。
func newSummarizer(cfg config.LLMConfig) (*llm.Summarizer, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	models := []llm.ModelConfig{{
		Name:        cfg.Model,
		APIURL:      cfg.APIURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     timeout,
	}}
	for _, fb := range cfg.Fallbacks {
		models = append(models, llm.ModelConfig{
			Name:        fb.Name,
			APIURL:      fb.APIURL,
			APIKey:      fb.APIKey,
			Model:       fb.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		})
	}
	provider, err := llm.NewMultiProvider(models)
	if err != nil {
		return nil, err
	}
	return llm.NewSummarizer(provider), nil
}

func openArchive(path string) (*archive.DB, error) {
	db, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func printFailure(w io.Writer, report newsletter.RunReport, err error) {
	switch {
	case errors.Is(err, newsletter.ErrNoArticles):
		fmt.Fprintln(w, "❌ No articles were fetched.")
	case errors.Is(err, newsletter.ErrNoRecipients):
		fmt.Fprintln(w, "❌ Recipient email not found!")
		fmt.Fprintln(w, "📝 Please add subscribers or set the TO_EMAIL environment variable")
	case errors.Is(err, mail.ErrMissingCredentials):
		fmt.Fprintln(w, "❌ Gmail credentials not found!")
		fmt.Fprintln(w, "📝 Please set the following environment variables:")
		fmt.Fprintln(w, "  • GMAIL_EMAIL=your_email@gmail.com")
		fmt.Fprintln(w, "  • GMAIL_APP_PASSWORD=your_app_password")
		fmt.Fprintln(w, "\n💡 To get an App Password:")
		fmt.Fprintln(w, "  1. Go to Google Account settings")
		fmt.Fprintln(w, "  2. Security > 2-Step Verification > App passwords")
		fmt.Fprintln(w, "  3. Generate a new app password for 'Mail'")
	case errors.Is(err, mail.ErrAuthentication):
		fmt.Fprintln(w, "❌ Authentication failed!")
		fmt.Fprintln(w, "📝 This usually means:")
		fmt.Fprintln(w, "  • Wrong Gmail App Password")
		fmt.Fprintln(w, "  • 2-Factor Authentication not enabled")
		fmt.Fprintln(w, "  • App Password not generated for 'Mail'")
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(w, "⚠️ Interrupted after %d deliveries\n", len(report.Run.Deliveries))
	default:
		fmt.Fprintf(w, "❌ Error sending newsletter: %v\n", err)
	}
}
