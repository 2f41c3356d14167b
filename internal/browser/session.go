// Package browser 封装一次性的 Chrome 会话（chromedp）。
//
// 约束：
// - Session 是有作用域的资源：NewSession 成功后调用方必须 defer Close()
// - 所有等待都是“条件 + 上限”，不使用固定 sleep
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/John-Robertt/marcatop/internal/infra/fsx"
	"github.com/John-Robertt/marcatop/internal/infra/httpx"
)

// Options 描述如何获得浏览器。
type Options struct {
	// RemoteURL 非空：连接已运行的 Chrome（例如 ws://127.0.0.1:9222）；否则本地启动。
	RemoteURL string
	ExecPath  string
	Headless  bool
	ProxyURL  string
	// UserAgent 为空时从内置 UA 池随机选取。
	UserAgent string
	Logger    *slog.Logger
}

// Session 是一个浏览器 tab 及其分配器。
type Session struct {
	ctx     context.Context
	cancels []context.CancelFunc

	once     sync.Once
	closeErr error
}

// StartError 表示浏览器无法启动或无法连接。
type StartError struct {
	Remote string
	Err    error
}

func (e *StartError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("连接浏览器失败（%s）：%v", e.Remote, e.Err)
	}
	return fmt.Sprintf("启动浏览器失败：%v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// NavigationError 表示页面加载失败（网络错误或非 2xx 状态）。
type NavigationError struct {
	URL        string
	StatusCode int // 0 表示未拿到响应
	Err        error
}

func (e *NavigationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("加载页面失败：%s 返回 HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("加载页面失败：%s：%v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// NewSession 分配浏览器并打开一个 tab。
// 浏览器在这里就真正启动（而不是推迟到第一次 Run），启动失败直接返回 *StartError。
func NewSession(parent context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = httpx.UserAgent()
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	remote := strings.TrimSpace(opts.RemoteURL)
	if remote != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, remote)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, execOptions(opts, ua)...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	s := &Session{ctx: ctx, cancels: []context.CancelFunc{cancel, allocCancel}}

	// 远程浏览器无法用启动参数改 UA，统一走 CDP 覆盖。
	if err := chromedp.Run(ctx, emulation.SetUserAgentOverride(ua)); err != nil {
		_ = s.Close()
		return nil, &StartError{Remote: remote, Err: err}
	}
	logger.Debug("浏览器会话已就绪", "remote", remote != "", "headless", opts.Headless)
	return s, nil
}

func execOptions(opts Options, ua string) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 1024),
		chromedp.UserAgent(ua),
	)
	if p := strings.TrimSpace(opts.ExecPath); p != "" {
		out = append(out, chromedp.ExecPath(p))
	}
	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		out = append(out, chromedp.ProxyServer(p))
	}
	return out
}


// Run 在本会话的 tab 上执行动作。
func (s *Session) Run(actions ...chromedp.Action) error {
	return chromedp.Run(s.ctx, actions...)
}

// Navigate 打开 url，并把网络错误与非 2xx 状态统一为 *NavigationError。
func (s *Session) Navigate(url string) error {
	resp, err := chromedp.RunResponse(s.ctx, chromedp.Navigate(url))
	if err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	if resp != nil && (resp.Status < 200 || resp.Status >= 400) {
		return &NavigationError{URL: url, StatusCode: int(resp.Status)}
	}
	return nil
}

// Nodes 等待至少一个 sel 节点可交互后，返回全部匹配节点（文档顺序）。
func (s *Session) Nodes(sel Selector, timeout time.Duration) ([]*cdp.Node, error) {
	if err := s.Run(WaitInteractable(sel, timeout)); err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, chromedp.Nodes(sel.Expr, &nodes, sel.queryAll())); err != nil {
		return nil, wrapStepError(s.ctx, sel.String(), "query", timeout, err)
	}
	if len(nodes) == 0 {
		return nil, &ElementError{Selector: sel.String(), Op: "query", Err: ErrNotFound}
	}
	return nodes, nil
}

// ClickNode 把节点滚动到可视区域后点击。
func (s *Session) ClickNode(n *cdp.Node, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	err := chromedp.Run(ctx,
		dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID),
		chromedp.MouseClickNode(n),
	)
	if err != nil {
		return wrapStepError(s.ctx, n.FullXPath(), "click", timeout, err)
	}
	return nil
}

// Text 返回第一个匹配节点的 textContent（trim 后）；节点不存在返回 *ElementError。
func (s *Session) Text(sel Selector) (string, error) {
	var out struct {
		Found bool   `json:"found"`
		Text  string `json:"text"`
	}
	js := fmt.Sprintf(`(function(){const el=%s; return el ? {found:true, text:(el.textContent||'').trim()} : {found:false, text:''};})()`, sel.resolveJS())
	if err := s.Run(chromedp.Evaluate(js, &out)); err != nil {
		return "", &ElementError{Selector: sel.String(), Op: "text", Err: err}
	}
	if !out.Found {
		return "", &ElementError{Selector: sel.String(), Op: "text", Err: ErrNotFound}
	}
	return out.Text, nil
}

// Snapshot 把当前页面 HTML 与截图写入 dir（用于失败后排查，best-effort）。
func (s *Session) Snapshot(dir string) error {
	var (
		html string
		png  []byte
	)
	ctx, cancel := context.WithTimeout(s.ctx, defaultSnapshotTimeout)
	defer cancel()
	if err := chromedp.Run(ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&png),
	); err != nil {
		return err
	}
	if err := fsx.WriteFileAtomic(dir, "page.html", []byte(html)); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Clean(dir), "page.png", png)
}

// Close 关闭 tab 与分配器（可重复调用，只有第一次生效）。
func (s *Session) Close() error {
	s.once.Do(func() {
		s.closeErr = chromedp.Cancel(s.ctx)
		for _, c := range s.cancels {
			c()
		}
	})
	return s.closeErr
}
