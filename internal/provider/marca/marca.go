package marca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/John-Robertt/marcatop/internal/browser"
	"github.com/John-Robertt/marcatop/internal/domain"
	providerx "github.com/John-Robertt/marcatop/internal/provider"
)

// Provider 实现 Marca “Top 100” 页面的抓取与卡片解析。
//
// 约束：
// - 页面完全由 JS 渲染，必须通过浏览器点击每张卡片才能拿到详情面板
// - Fetch 的浏览器会话只存在于本次调用内
// - Parse 是纯函数（只依赖卡片片段）
type Provider struct {
	URL         string
	Browser     browser.Options
	Selectors   Selectors
	WaitTimeout time.Duration
	// DebugDir 非空时，Fetch 失败会把页面 HTML 与截图写到该目录。
	DebugDir string
}

// Selectors 是页面结构的全部耦合点。
type Selectors struct {
	ConsentLearnMore browser.Selector
	ConsentDisagree  browser.Selector
	Card             browser.Selector
	Fields           Fields
}

// Fields 是详情面板六个字段的 CSS 选择器。
type Fields struct {
	Name        string
	Nationality string
	Team        string
	League      string
	Age         string
	Position    string
}

func (f Fields) list() []fieldSel {
	return []fieldSel{
		{"name", f.Name},
		{"nationality", f.Nationality},
		{"team", f.Team},
		{"league", f.League},
		{"age", f.Age},
		{"position", f.Position},
	}
}

type fieldSel struct {
	field string
	sel   string
}

// DefaultSelectors 返回当前站点结构对应的选择器。
func DefaultSelectors() Selectors {
	return Selectors{
		ConsentLearnMore: browser.XPath(`//*[@id="didomi-notice-learn-more-button"]`),
		ConsentDisagree:  browser.XPath(`//*[@id="didomi-consent-popup"]/div/div/div/div/div[4]/div/button[1]`),
		Card:             browser.CSS(".contenedorEscudo"),
		Fields: Fields{
			Name:        "#nombre",
			Nationality: "#pais",
			Team:        "#equipo",
			League:      "#liga",
			Age:         "#edad",
			Position:    "#demarcacion",
		},
	}
}

const defaultWaitTimeout = 15 * time.Second

func (Provider) Name() string { return "marca" }

func (p Provider) selectors() Selectors {
	if p.Selectors.Card.IsZero() {
		return DefaultSelectors()
	}
	return p.Selectors
}

func (p Provider) waitTimeout() time.Duration {
	if p.WaitTimeout <= 0 {
		return defaultWaitTimeout
	}
	return p.WaitTimeout
}

func (p Provider) logger() *slog.Logger {
	if p.Browser.Logger != nil {
		return p.Browser.Logger
	}
	return slog.Default()
}

// Fetch 打开页面、处理同意弹窗，然后逐张点击卡片并捕获详情面板。
func (p Provider) Fetch(ctx context.Context, progress providerx.Progress) ([]domain.Card, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, errors.New("url 不能为空")
	}
	s, err := browser.NewSession(ctx, p.Browser)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	cards, err := p.collect(ctx, s, progress)
	if err != nil && p.DebugDir != "" {
		if serr := s.Snapshot(p.DebugDir); serr != nil {
			p.logger().Debug("保存失败现场失败", "dir", p.DebugDir, "err", serr)
		} else {
			p.logger().Info("已保存失败现场", "dir", p.DebugDir)
		}
	}
	return cards, err
}

func (p Provider) collect(ctx context.Context, s *browser.Session, progress providerx.Progress) ([]domain.Card, error) {
	sel := p.selectors()
	wait := p.waitTimeout()
	log := p.logger()

	if err := s.Navigate(p.URL); err != nil {
		var ne *browser.NavigationError
		if errors.As(err, &ne) && ne.StatusCode != 0 {
			return nil, &providerx.HTTPStatusError{URL: p.URL, StatusCode: ne.StatusCode}
		}
		return nil, err
	}

	for _, c := range []browser.Selector{sel.ConsentLearnMore, sel.ConsentDisagree} {
		if c.IsZero() {
			continue
		}
		if err := s.Run(browser.ClickWhenReady(c, wait)); err != nil {
			return nil, err
		}
		log.Debug("已点击同意弹窗按钮", "selector", c.String())
	}

	nodes, err := s.Nodes(sel.Card, wait)
	if err != nil {
		return nil, err
	}
	log.Debug("找到卡片", "count", len(nodes))

	name := browser.CSS(sel.Fields.Name)
	clearJS := fmt.Sprintf(`(function(){const el=document.querySelector(%s); if(el) el.textContent=''; return true;})()`, jsString(sel.Fields.Name))
	captureJS := captureScript(sel.Fields)

	out := make([]domain.Card, 0, len(nodes))
	for i, n := range nodes {
		// 先清空名字字段，再等它被新卡片填充：连续两张卡片同名时也不会误判。
		var ok bool
		if err := s.Run(chromedp.Evaluate(clearJS, &ok)); err != nil {
			return nil, err
		}
		if err := s.ClickNode(n, wait); err != nil {
			return nil, err
		}
		if err := s.Run(browser.WaitTextChange(name, "", wait)); err != nil {
			return nil, err
		}
		var html string
		if err := s.Run(chromedp.Evaluate(captureJS, &html)); err != nil {
			return nil, err
		}
		out = append(out, domain.Card{Index: i, HTML: html})
		if log.Enabled(ctx, slog.LevelDebug) {
			if player, err := s.Text(name); err == nil {
				log.Debug("已捕获卡片", "index", i, "name", player)
			}
		}
		if progress != nil {
			progress(i+1, len(nodes))
		}
	}
	return out, nil
}

// captureScript 返回一段 JS：把六个字段元素的 outerHTML 拼成一个片段（缺失的字段直接跳过，由 Parse 报错）。
func captureScript(f Fields) string {
	sels := make([]string, 0, 6)
	for _, fs := range f.list() {
		sels = append(sels, fs.sel)
	}
	lit, _ := json.Marshal(sels)
	return fmt.Sprintf(`(function(){
  return %s.map(function(s){ const el=document.querySelector(s); return el ? el.outerHTML : ''; }).join('\n');
})()`, lit)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Parse 把卡片片段解析为原始 PlayerRecord（不做规范化）。
func (p Provider) Parse(card domain.Card) (domain.PlayerRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(card.HTML)))
	if err != nil {
		return domain.PlayerRecord{}, err
	}

	vals := make(map[string]string, 6)
	for _, fs := range p.selectors().Fields.list() {
		node := doc.Find(fs.sel).First()
		if node.Length() == 0 {
			return domain.PlayerRecord{}, &providerx.MissingFieldError{Field: fs.field, Selector: fs.sel}
		}
		vals[fs.field] = normSpace(node.Text())
	}
	if vals["name"] == "" {
		return domain.PlayerRecord{}, &providerx.MissingFieldError{Field: "name", Selector: p.selectors().Fields.Name}
	}

	return domain.PlayerRecord{
		Rank:        card.Index + 1,
		Name:        vals["name"],
		Nationality: vals["nationality"],
		Team:        vals["team"],
		League:      vals["league"],
		Age:         vals["age"],
		Position:    vals["position"],
	}, nil
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
