package marca

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/marcatop/internal/browser"
	providerx "github.com/John-Robertt/marcatop/internal/provider"
)

// -with-chromedp=local 启动本机 Chrome；其它非空值视为远程调试地址。
var withChromeDP = flag.String("with-chromedp", "", "local 或远程调试地址")

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(m.Run())
}

type fakePlayer struct {
	name, country, team, league, age, pos string
}

var fakePlayers = []fakePlayer{
	{"Erling Haaland", "Noruega", "Manchester City", "Premier League", "22 años", "ATACANTE"},
	{"Luka Modric", "Croacia", "Real Madrid", "LaLiga", "37 años", "CENTROCAMPISTA"},
	{"Luka Modric", "Croacia", "Real Madrid", "LaLiga", "37 años", "CENTROCAMPISTA"},
	{"Thibaut Courtois", "Bélgica", "Real Madrid", "LaLiga", "31 años", "PORTERO"},
}

// fakePage 模拟站点结构：延迟出现的同意弹窗、卡片列表、异步填充的详情面板。
func fakePage() string {
	var b strings.Builder
	b.WriteString(`<!doctype html><html><body>
<button id="didomi-notice-learn-more-button" style="display:none" onclick="document.getElementById('didomi-consent-popup').style.display='block'">Más información</button>
<div id="didomi-consent-popup" style="display:none"><div><div><div><div>
  <div>a</div><div>b</div><div>c</div>
  <div><div><button onclick="document.getElementById('didomi-consent-popup').remove(); document.getElementById('lista').style.display='block'">Rechazar</button></div></div>
</div></div></div></div></div>
<div id="lista" style="display:none">`)
	for i := range fakePlayers {
		fmt.Fprintf(&b, `<div class="contenedorEscudo" style="height:20px" onclick="show(%d)">%d</div>`, i, i+1)
	}
	b.WriteString(`</div>
<div id="panel"><div id="nombre"></div><div id="pais"></div><div id="equipo"></div><div id="liga"></div><div id="edad"></div><div id="demarcacion"></div></div>
<script>
var players = [`)
	for _, p := range fakePlayers {
		fmt.Fprintf(&b, `[%q,%q,%q,%q,%q,%q],`, p.name, p.country, p.team, p.league, p.age, p.pos)
	}
	b.WriteString(`];
var ids = ['nombre','pais','equipo','liga','edad','demarcacion'];
function show(i){ setTimeout(function(){ ids.forEach(function(id, k){ document.getElementById(id).textContent = players[i][k]; }); }, 150); }
setTimeout(function(){ document.getElementById('didomi-notice-learn-more-button').style.display='block'; }, 200);
</script></body></html>`)
	return b.String()
}

func testProvider(t *testing.T, handler http.Handler) (Provider, context.Context) {
	t.Helper()
	if *withChromeDP == "" {
		t.Skip("未指定 -with-chromedp，跳过浏览器测试")
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := browser.Options{Headless: true}
	if *withChromeDP != "local" {
		opts.RemoteURL = *withChromeDP
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	return Provider{URL: srv.URL + "/futbol/top-100.html", Browser: opts, WaitTimeout: 5 * time.Second}, ctx
}

func TestFetch_FakePage(t *testing.T) {
	p, ctx := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fakePage()))
	}))

	var last int
	cards, err := p.Fetch(ctx, func(done, total int) { last = done })
	if err != nil {
		t.Fatalf("Fetch 失败：%v", err)
	}
	if len(cards) != len(fakePlayers) || last != len(fakePlayers) {
		t.Fatalf("期望 %d 张卡片，实际 %d（progress=%d）", len(fakePlayers), len(cards), last)
	}
	recs, err := providerx.ParseAll(p, cards)
	if err != nil {
		t.Fatalf("ParseAll 失败：%v", err)
	}
	for i, r := range recs {
		if r.Rank != i+1 || r.Name != fakePlayers[i].name || r.Position != fakePlayers[i].pos {
			t.Fatalf("第 %d 条记录不符合预期：%+v", i, r)
		}
	}
}

func TestFetch_HTTP404(t *testing.T) {
	p, ctx := testProvider(t, http.NotFoundHandler())

	_, err := p.Fetch(ctx, nil)
	var he *providerx.HTTPStatusError
	if !errors.As(err, &he) || he.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 HTTP 404，实际 %v", err)
	}
}

func TestFetch_NoConsentDialogTimesOut(t *testing.T) {
	p, ctx := testProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!doctype html><html><body>nothing here</body></html>`))
	}))
	p.WaitTimeout = 500 * time.Millisecond
	p.DebugDir = t.TempDir()

	_, err := p.Fetch(ctx, nil)
	var te *browser.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("期望 TimeoutError，实际 %v", err)
	}
	if _, serr := os.Stat(p.DebugDir + "/page.html"); serr != nil {
		t.Fatalf("失败时应保存页面快照：%v", serr)
	}
}
