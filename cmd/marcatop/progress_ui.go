package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/marcatop/internal/app/run"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端上的进度输出。
//
// 约束：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：抓取阶段长时间没有新卡片时定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	fetching bool
	done     int
	total    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] marcatop run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  url: %s\n", truncate(eff.URL, 120))
	fmt.Fprintf(p.w, "  from_cache: %s\n", onOff(eff.FromCache))
	fmt.Fprintf(p.w, "  browser: %s\n", formatBrowser(eff.Browser))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  shapes: %s\n", eff.Shapes.Path)
	fmt.Fprintf(p.w, "  format: %s\n", eff.Render.Format)
	if eff.Cache.RedisURL != "" {
		fmt.Fprintf(p.w, "  cache: %s\n", formatProxy(eff.Cache.RedisURL))
	}
	if eff.Export.Driver != "" {
		fmt.Fprintf(p.w, "  export: %s\n", eff.Export.Driver)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case run.PhasePlan:
		src := stringField(fields, "source")
		fmt.Fprintf(p.w, "规划: source=%s cached_cards=%d (%s)\n", src, intField(fields, "cached_cards"), formatShortDuration(dur))
		if src == domain.SourceLive {
			fmt.Fprintln(p.w, "抓取: 启动浏览器…")
			p.fetching = true
			p.startTickerLocked()
		}
	case run.PhaseFetch:
		p.stopTickerLocked()
		fmt.Fprintf(p.w, "抓取: cards=%d source=%s (%s)\n", intField(fields, "cards"), stringField(fields, "source"), formatShortDuration(dur))
	case run.PhaseAggregate:
		fmt.Fprintf(p.w, "统计: players=%d nationalities=%d teams=%d leagues=%d unmapped=%d (%s)\n",
			intField(fields, "players"),
			intField(fields, "nationalities"),
			intField(fields, "teams"),
			intField(fields, "leagues"),
			intField(fields, "unmapped"),
			formatShortDuration(dur),
		)
	case run.PhaseShapes:
		fmt.Fprintf(p.w, "地图: shapes=%d unmatched=%d (%s)\n", intField(fields, "shapes"), intField(fields, "unmatched"), formatShortDuration(dur))
	case run.PhaseRender:
		fmt.Fprintf(p.w, "绘制: format=%s size=%s (%s)\n", stringField(fields, "format"), humanize.Bytes(uint64(intField(fields, "bytes"))), formatShortDuration(dur))
	case run.PhaseExport:
		fmt.Fprintf(p.w, "导出: driver=%s players=%d (%s)\n", stringField(fields, "driver"), intField(fields, "players"), formatShortDuration(dur))
	default:
		// 未知阶段也不要静默。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnCardDone(done, total int, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	p.total = total
	fmt.Fprintf(p.w, "[%d/%d] 卡片已捕获 (%s)\n", done, total, formatShortDuration(dur))
	p.lastPrinted = time.Now()
}

// Stop 停止 keepalive（可重复调用）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	p.fetching = false
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	if p.tickerStarted {
		return
	}
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.fetching && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.keepaliveLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) keepaliveLineLocked() string {
	elapsed := formatElapsed(time.Since(p.startedAt))
	if p.total == 0 {
		return fmt.Sprintf("进度: 等待页面与卡片 elapsed=%s", elapsed)
	}
	return fmt.Sprintf("进度: cards=%d/%d elapsed=%s", p.done, p.total, elapsed)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatBrowser(b config.BrowserSettings) string {
	if b.RemoteURL != "" {
		return "remote (" + truncate(b.RemoteURL, 120) + ")"
	}
	mode := "headless"
	if !b.Headless {
		mode = "headful"
	}
	if b.ExecPath != "" {
		return fmt.Sprintf("local %s (%s)", mode, truncate(b.ExecPath, 120))
	}
	return "local " + mode
}

// formatProxy 只展示 scheme/host，不回显凭据。
func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
