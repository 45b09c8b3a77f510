package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Defense Wire</title>
  <item>
    <title>Navy commissions new destroyer</title>
    <link>https://example.com/destroyer</link>
    <description>The ship joins the fleet.</description>
    <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func writeConfig(t *testing.T, feedURL, mailTo string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aeronews.yaml")
	content := fmt.Sprintf(`data_dir: %s
feeds:
  - name: Defense Wire
    url: %s
mail:
  username: ""
  password: ""
  to: %q
log:
  level: error
`, dir, feedURL, mailTo)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return path
}

func appendConfig(t *testing.T, path, extra string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("打开配置失败: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("追加配置失败: %v", err)
	}
}

func feedServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, testFeed)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDryRunPrintsReport(t *testing.T) {
	srv := feedServer(t, http.StatusOK)
	cfg := writeConfig(t, srv.URL, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg, "-dry-run"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("试运行应成功: %d %s %s", code, stdout.String(), stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"Total articles: 1", "Navy commissions new destroyer", "📊 Total articles fetched: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("输出缺少 %q: %s", want, out)
		}
	}
}

func TestDryRunPrintsAISummary(t *testing.T) {
	feed := feedServer(t, http.StatusOK)
	prompts := make(chan string, 1)
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			select {
			case prompts <- req.Messages[0].Content:
			default:
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Destroyers lead the week.\n\nSee you next update!"}}]}`)
	}))
	defer llmSrv.Close()

	cfg := writeConfig(t, feed.URL, "")
	appendConfig(t, cfg, fmt.Sprintf("llm:\n  api_url: %s\n  api_key: test-key\n", llmSrv.URL))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg, "-dry-run"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("试运行应成功: %d %s %s", code, stdout.String(), stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "🤖 AI summary:") || !strings.Contains(out, "See you next update!") {
		t.Errorf("输出缺少 AI 导语: %s", out)
	}
	var prompt string
	select {
	case prompt = <-prompts:
	default:
	}
	if !strings.Contains(prompt, "[Navy commissions new destroyer](https://example.com/destroyer)") {
		t.Errorf("提示词应包含文章链接: %s", prompt)
	}
}

func TestDryRunAISummaryFailure(t *testing.T) {
	feed := feedServer(t, http.StatusOK)
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided"}}`)
	}))
	defer llmSrv.Close()

	cfg := writeConfig(t, feed.URL, "")
	appendConfig(t, cfg, fmt.Sprintf("llm:\n  api_url: %s\n  api_key: bad-key\n", llmSrv.URL))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg, "-dry-run"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("AI 导语失败不应影响试运行: %d %s", code, stdout.String())
	}
	if strings.Contains(stdout.String(), "AI summary") {
		t.Errorf("生成失败时不应打印 AI 导语: %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Navy commissions new destroyer") {
		t.Errorf("仍应打印报告: %s", stdout.String())
	}
}

func TestNoArticles(t *testing.T) {
	srv := feedServer(t, http.StatusInternalServerError)
	cfg := writeConfig(t, srv.URL, "owner@example.com")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stdout.String(), "❌ No articles were fetched.") {
		t.Errorf("没有文章应失败: %d %s", code, stdout.String())
	}
}

func TestMissingCredentials(t *testing.T) {
	srv := feedServer(t, http.StatusOK)
	cfg := writeConfig(t, srv.URL, "owner@example.com")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("缺少凭证应返回 1，得到 %d", code)
	}
	if !strings.Contains(stdout.String(), "Gmail credentials not found") || !strings.Contains(stdout.String(), "App Password") {
		t.Errorf("应输出凭证配置说明: %s", stdout.String())
	}
}

func TestNoRecipients(t *testing.T) {
	srv := feedServer(t, http.StatusOK)
	cfg := writeConfig(t, srv.URL, "")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-config", cfg}, &stdout, &stderr); code != 1 {
		t.Errorf("没有收件人应返回 1，得到 %d", code)
	}
	if !strings.Contains(stdout.String(), "Recipient email not found") {
		t.Errorf("提示不正确: %s", stdout.String())
	}
}
