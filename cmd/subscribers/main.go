package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/aeronews/internal/archive"
	"github.com/iabetor/aeronews/internal/config"
	"github.com/iabetor/aeronews/internal/logger"
	"github.com/iabetor/aeronews/internal/subscriber"
)

const defaultExportFile = "subscribers_export.json"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	cfg    *config.Config
	store  *subscriber.Store
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("aeronews-subscribers", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "configs/aeronews.yaml", "配置文件路径")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 1
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

	store, err := subscriber.Open(cfg.Subscribers.File, subscriber.WithResubscribe(cfg.Subscribers.AllowResubscribe))
	if err != nil {
		fmt.Fprintf(stderr, "打开订阅者存储失败: %v\n", err)
		return 1
	}

	c := &cli{cfg: cfg, store: store, stdout: stdout, stderr: stderr}
	switch rest[0] {
	case "subscribe":
		return c.cmdSubscribe(rest[1:])
	case "unsubscribe":
		return c.cmdUnsubscribe(rest[1:])
	case "list":
		return c.cmdList(rest[1:])
	case "stats":
		return c.cmdStats()
	case "import":
		return c.cmdImport(rest[1:])
	case "export":
		return c.cmdExport(rest[1:])
	case "history":
		return c.cmdHistory(rest[1:])
	default:
		fmt.Fprintf(stderr, "未知命令: %s\n", rest[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "aeronews 订阅者管理工具")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "用法: aeronews-subscribers [-config <path>] <command> [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "命令:")
	fmt.Fprintln(w, "  subscribe <email> [-name <名字>]        添加订阅者")
	fmt.Fprintln(w, "  unsubscribe <email>                     退订")
	fmt.Fprintln(w, "  list [-active-only] [-format table|json|csv]")
	fmt.Fprintln(w, "                                          列出订阅者")
	fmt.Fprintln(w, "  stats                                   订阅统计")
	fmt.Fprintln(w, "  import <file>                           从 JSON 文件批量导入")
	fmt.Fprintln(w, "  export [-file <path>] [-active-only]    导出为 JSON 文件")
	fmt.Fprintln(w, "  history [-limit N]                      最近的简报发送记录")
}

// parseInterspersed 允许标志出现在位置参数之后，如 subscribe a@b.com -name Ann。
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) cmdSubscribe(args []string) int {
	fs := c.newFlagSet("subscribe")
	name := fs.String("name", "", "订阅者名字")
	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(pos) != 1 {
		fmt.Fprintln(c.stderr, "用法: aeronews-subscribers subscribe <email> [-name <名字>]")
		return 1
	}

	email := pos[0]
	if _, err := c.store.Subscribe(email, *name); err != nil {
		fmt.Fprintf(c.stdout, "❌ Failed to subscribe %s: %s\n", email, subscriber.Message(err))
		return 1
	}
	fmt.Fprintf(c.stdout, "✅ Successfully subscribed %s\n", email)
	return 0
}

func (c *cli) cmdUnsubscribe(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.stderr, "用法: aeronews-subscribers unsubscribe <email>")
		return 1
	}

	email := args[0]
	if _, err := c.store.Unsubscribe(email, ""); err != nil {
		fmt.Fprintf(c.stdout, "❌ Failed to unsubscribe %s: %s\n", email, subscriber.Message(err))
		return 1
	}
	fmt.Fprintf(c.stdout, "✅ Successfully unsubscribed %s\n", email)
	return 0
}

func (c *cli) cmdList(args []string) int {
	fs := c.newFlagSet("list")
	activeOnly := fs.Bool("active-only", false, "只列出活跃订阅者")
	format := fs.String("format", "table", "输出格式: table, json, csv")
	if _, err := parseInterspersed(fs, args); err != nil {
		return 2
	}

	var subs []subscriber.Subscriber
	if *activeOnly {
		subs = c.store.Active()
	} else {
		subs = c.store.All()
	}

	switch *format {
	case "json":
		return c.writeJSON(c.stdout, subs)
	case "csv":
		return c.writeCSV(subs)
	case "table":
		c.writeTable(subs)
		return 0
	default:
		fmt.Fprintf(c.stderr, "不支持的输出格式: %s\n", *format)
		return 1
	}
}

func (c *cli) writeJSON(w io.Writer, v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(c.stderr, "序列化失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(w, string(data))
	return 0
}

func (c *cli) writeCSV(subs []subscriber.Subscriber) int {
	if len(subs) == 0 {
		return 0
	}
	w := csv.NewWriter(c.stdout)
	_ = w.Write([]string{"email", "name", "active", "subscribed_at", "unsubscribed_at"})
	for _, s := range subs {
		unsubscribedAt := ""
		if s.UnsubscribedAt != nil {
			unsubscribedAt = s.UnsubscribedAt.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			s.Email,
			s.DisplayName(),
			strconv.FormatBool(s.Active),
			s.SubscribedAt.Format(time.RFC3339),
			unsubscribedAt,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(c.stderr, "写入 CSV 失败: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) writeTable(subs []subscriber.Subscriber) {
	if len(subs) == 0 {
		fmt.Fprintln(c.stdout, "No subscribers found")
		return
	}

	fmt.Fprintf(c.stdout, "%-30s %-20s %-10s %-12s\n", "Email", "Name", "Status", "Subscribed")
	fmt.Fprintln(c.stdout, strings.Repeat("-", 80))
	for _, s := range subs {
		status := "Active"
		if !s.Active {
			status = "Inactive"
		}
		name := "N/A"
		if n := s.DisplayName(); n != "" {
			name = truncateRunes(n, 19)
		}
		subscribed := "N/A"
		if !s.SubscribedAt.IsZero() {
			subscribed = s.SubscribedAt.Format("2006-01-02")
		}
		fmt.Fprintf(c.stdout, "%-30s %-20s %-10s %-12s\n", s.Email, name, status, subscribed)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (c *cli) cmdStats() int {
	stats := c.store.Stats()
	lastUpdated := "never"
	if stats.LastUpdated != nil {
		lastUpdated = stats.LastUpdated.Format(time.RFC3339)
	}

	fmt.Fprintln(c.stdout, "📊 Newsletter Statistics")
	fmt.Fprintln(c.stdout, strings.Repeat("=", 30))
	fmt.Fprintf(c.stdout, "Active subscribers: %d\n", stats.Active)
	fmt.Fprintf(c.stdout, "Total subscribers: %d\n", stats.Total)
	fmt.Fprintf(c.stdout, "Inactive subscribers: %d\n", stats.Inactive)
	fmt.Fprintf(c.stdout, "Last updated: %s\n", lastUpdated)
	return 0
}

func (c *cli) cmdImport(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.stderr, "用法: aeronews-subscribers import <file>")
		return 1
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(c.stdout, "❌ Error importing subscribers: %v\n", err)
		return 1
	}
	entries, err := subscriber.ParseImport(data)
	if err != nil {
		fmt.Fprintf(c.stdout, "❌ Error importing subscribers: %v\n", err)
		return 1
	}

	report := c.store.Import(entries)
	for _, f := range report.Failures {
		fmt.Fprintf(c.stdout, "❌ Failed to import %s: %s\n", f.Email, subscriber.Message(f.Err))
	}
	fmt.Fprintf(c.stdout, "✅ Imported %d subscribers, %d failed\n", report.Imported, report.Failed())
	return 0
}

func (c *cli) cmdExport(args []string) int {
	fs := c.newFlagSet("export")
	file := fs.String("file", defaultExportFile, "输出文件")
	activeOnly := fs.Bool("active-only", false, "只导出活跃订阅者")
	if _, err := parseInterspersed(fs, args); err != nil {
		return 2
	}

	subs := c.store.Export(!*activeOnly)
	data, err := json.MarshalIndent(subs, "", "  ")
	if err == nil {
		err = os.WriteFile(*file, data, 0644)
	}
	if err != nil {
		fmt.Fprintf(c.stdout, "❌ Error exporting subscribers: %v\n", err)
		return 1
	}
	fmt.Fprintf(c.stdout, "✅ Exported %d subscribers to %s\n", len(subs), *file)
	return 0
}

func (c *cli) cmdHistory(args []string) int {
	fs := c.newFlagSet("history")
	limit := fs.Int("limit", 10, "显示最近几次发送")
	if _, err := parseInterspersed(fs, args); err != nil {
		return 2
	}

	db, err := archive.Open(c.cfg.Archive.Path)
	if err != nil {
		fmt.Fprintf(c.stderr, "打开发送记录失败: %v\n", err)
		return 1
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(c.stderr, "%v\n", err)
		return 1
	}

	runs, err := db.RecentRuns(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(c.stderr, "读取发送记录失败: %v\n", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "No digest runs recorded")
		return 0
	}

	for _, r := range runs {
		mode := ""
		if r.DryRun {
			mode = " (dry run)"
		}
		fmt.Fprintf(c.stdout, "%s  %s  articles=%d feed_failures=%d sent=%d failed=%d%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.ID, r.ArticleCount, r.FeedFailures,
			r.Sent(), len(r.Deliveries)-r.Sent(), mode)
		for _, d := range r.Deliveries {
			if d.Status == archive.StatusFailed {
				fmt.Fprintf(c.stdout, "    ❌ %s [%s] %s\n", d.Recipient, d.ErrorKind, d.Error)
			}
		}
	}
	return 0
}
