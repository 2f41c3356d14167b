package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_Proxy(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:8080", 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("期望默认超时 %s，实际 %s", DefaultTimeout, c.Timeout)
	}
}

func TestNewClient_NoProxy(t *testing.T) {
	c, err := NewClient("", 5*time.Second)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if c.Timeout != 5*time.Second {
		t.Fatalf("期望超时 5s，实际 %s", c.Timeout)
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewClient("http://[::1", 0); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestNewResty_SetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	rc, err := NewResty("", 5*time.Second)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := rc.R().Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	if resp.StatusCode() != http.StatusOK || string(resp.Body()) != "ok" {
		t.Fatalf("响应不符合预期：%d %q", resp.StatusCode(), string(resp.Body()))
	}
	if !strings.HasPrefix(gotUA, "Mozilla/5.0") {
		t.Fatalf("期望使用 UA 池中的 User-Agent，实际 %q", gotUA)
	}
}
