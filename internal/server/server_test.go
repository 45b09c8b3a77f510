package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/iabetor/aeronews/internal/subscriber"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *subscriber.Store) {
	t.Helper()
	store, err := subscriber.Open(filepath.Join(t.TempDir(), "subscribers.json"))
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	return New(store), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应不是 JSON: %s", w.Body.String())
	}
	return w, resp
}

func doForm(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSubscribeJSON(t *testing.T) {
	srv, store := newTestServer(t)

	w, resp := doJSON(t, srv.Handler(), http.MethodPost, "/subscribe", `{"email": " Pilot@Example.com ", "name": "Pilot"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，得到 %d: %s", w.Code, w.Body.String())
	}
	if resp["success"] != true || resp["message"] != subscriber.MsgSubscribed {
		t.Errorf("响应不正确: %v", resp)
	}
	if resp["email"] != "pilot@example.com" {
		t.Errorf("应返回规范化邮箱: %v", resp["email"])
	}
	if _, ok := resp["subscriber"]; ok {
		t.Error("响应不应包含订阅者记录（含令牌）")
	}
	if !store.IsSubscribed("pilot@example.com") {
		t.Error("订阅应写入存储")
	}
}

func TestSubscribeForm(t *testing.T) {
	srv, store := newTestServer(t)

	w := doForm(srv.Handler(), "/subscribe", url.Values{"email": {"crew@example.com"}})
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，得到 %d: %s", w.Code, w.Body.String())
	}
	if !store.IsSubscribed("crew@example.com") {
		t.Error("表单订阅应写入存储")
	}
}

func TestSubscribeErrors(t *testing.T) {
	srv, store := newTestServer(t)
	_, _ = store.Subscribe("taken@example.com", "")

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"missing email", `{"name": "x"}`, msgEmailRequired},
		{"blank email", `{"email": "   "}`, msgEmailRequired},
		{"malformed", `{"email": "not-an-email"}`, "Invalid email format"},
		{"duplicate", `{"email": "TAKEN@example.com"}`, "Email already subscribed"},
		{"bad json", `{"email":`, msgInvalidBody},
	}
	for _, tc := range tests {
		w, resp := doJSON(t, srv.Handler(), http.MethodPost, "/subscribe", tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: 期望 400，得到 %d", tc.name, w.Code)
		}
		if resp["success"] != false || resp["message"] != tc.message {
			t.Errorf("%s: 响应不正确: %v", tc.name, resp)
		}
	}
	if store.Stats().Total != 1 {
		t.Errorf("失败的请求不应修改存储: %+v", store.Stats())
	}
}

func TestUnsubscribeByEmailAndToken(t *testing.T) {
	srv, store := newTestServer(t)
	a, _ := store.Subscribe("a@example.com", "")
	_, _ = store.Subscribe("b@example.com", "")

	w, resp := doJSON(t, srv.Handler(), http.MethodPost, "/unsubscribe", `{"token": "`+a.UnsubscribeToken+`"}`)
	if w.Code != http.StatusOK || resp["message"] != subscriber.MsgUnsubscribed {
		t.Fatalf("按令牌退订失败: %d %v", w.Code, resp)
	}
	if store.IsSubscribed("a@example.com") {
		t.Error("a 应已退订")
	}

	w = doForm(srv.Handler(), "/unsubscribe", url.Values{"email": {"B@example.com"}})
	if w.Code != http.StatusOK {
		t.Fatalf("按邮箱退订失败: %d %s", w.Code, w.Body.String())
	}
	if store.Count() != 0 {
		t.Errorf("应没有活跃订阅者: %d", store.Count())
	}
}

func TestUnsubscribeErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	w, resp := doJSON(t, srv.Handler(), http.MethodPost, "/unsubscribe", `{}`)
	if w.Code != http.StatusBadRequest || resp["message"] != msgIdentifierRequired {
		t.Errorf("缺少标识应返回 400: %d %v", w.Code, resp)
	}

	w, resp = doJSON(t, srv.Handler(), http.MethodPost, "/unsubscribe", `{"email": "ghost@example.com"}`)
	if w.Code != http.StatusBadRequest || resp["message"] != "Email not found in subscribers" {
		t.Errorf("未知邮箱应返回 400: %d %v", w.Code, resp)
	}
}

func TestUnsubscribeFormPrefill(t *testing.T) {
	srv, store := newTestServer(t)
	sub, _ := store.Subscribe("reader@example.com", "")

	req := httptest.NewRequest(http.MethodGet, "/unsubscribe?token="+sub.UnsubscribeToken, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，得到 %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `value="reader@example.com"`) {
		t.Error("通过令牌打开时应预填邮箱")
	}
	if !strings.Contains(body, `value="`+sub.UnsubscribeToken+`"`) {
		t.Error("表单应带上令牌")
	}
}

func TestIndexAndAdminPages(t *testing.T) {
	srv, store := newTestServer(t)
	_, _ = store.Subscribe("a@example.com", "<b>Ann</b>")
	_, _ = store.Subscribe("b@example.com", "")
	_, _ = store.Unsubscribe("b@example.com", "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "1 active subscribers") {
		t.Errorf("首页不正确: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Fatalf("管理页期望 200，得到 %d", w.Code)
	}
	for _, want := range []string{"a@example.com", "b@example.com", "Active: 1", "Inactive: 1", "Total: 2", "&lt;b&gt;Ann&lt;/b&gt;"} {
		if !strings.Contains(body, want) {
			t.Errorf("管理页缺少 %q", want)
		}
	}
}

func TestAPISubscribers(t *testing.T) {
	srv, store := newTestServer(t)
	_, _ = store.Subscribe("a@example.com", "")
	_, _ = store.Subscribe("b@example.com", "")
	_, _ = store.Unsubscribe("b@example.com", "")

	_, resp := doJSON(t, srv.Handler(), http.MethodGet, "/api/subscribers", "")
	if resp["success"] != true || resp["count"] != float64(1) {
		t.Errorf("默认只返回活跃订阅者: %v", resp)
	}

	_, resp = doJSON(t, srv.Handler(), http.MethodGet, "/api/subscribers?include_inactive=TRUE", "")
	if resp["count"] != float64(2) {
		t.Errorf("include_inactive=true 应返回全部: %v", resp["count"])
	}
	subs := resp["subscribers"].([]interface{})
	first := subs[0].(map[string]interface{})
	if first["email"] != "a@example.com" || first["unsubscribe_token"] == "" {
		t.Errorf("订阅者字段不正确: %v", first)
	}
}

func TestAPIStats(t *testing.T) {
	srv, store := newTestServer(t)
	_, _ = store.Subscribe("a@example.com", "")

	_, resp := doJSON(t, srv.Handler(), http.MethodGet, "/api/stats", "")
	stats := resp["stats"].(map[string]interface{})
	if resp["success"] != true || stats["active_subscribers"] != float64(1) || stats["total_subscribers"] != float64(1) {
		t.Errorf("统计不正确: %v", resp)
	}
	if v, ok := stats["last_updated"]; !ok || v == nil {
		t.Errorf("写盘后 last_updated 应有值，实际 %v", v)
	}
}

func TestAPIStatsNeverWritten(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp := doJSON(t, srv.Handler(), http.MethodGet, "/api/stats", "")
	stats := resp["stats"].(map[string]interface{})
	v, ok := stats["last_updated"]
	if !ok {
		t.Fatal("统计缺少 last_updated")
	}
	if v != nil {
		t.Errorf("从未写盘时 last_updated 应为 null，实际 %v", v)
	}
}

// failingStore 模拟写盘失败。
type failingStore struct {
	*subscriber.Store
}

func (f failingStore) Subscribe(email, name string) (subscriber.Subscriber, error) {
	return subscriber.Subscriber{}, &subscriber.Error{Kind: subscriber.KindPersistence, Email: email, Err: errors.New("disk full")}
}

func TestSubscribePersistenceFailure(t *testing.T) {
	_, store := newTestServer(t)
	srv := New(failingStore{store})

	w, resp := doJSON(t, srv.Handler(), http.MethodPost, "/subscribe", `{"email": "a@example.com"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("写盘失败应返回 500，得到 %d", w.Code)
	}
	if resp["message"] != msgSubscribeFailed {
		t.Errorf("不应暴露内部错误: %v", resp["message"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/subscribe", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /subscribe 应返回 405，得到 %d", w.Code)
	}
}
