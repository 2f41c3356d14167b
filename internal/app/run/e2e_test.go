package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/marcatop/internal/browser"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/export"
	"github.com/John-Robertt/marcatop/internal/infra/cache"
	"github.com/John-Robertt/marcatop/internal/provider"
)

// stubProvider 用 Card.HTML 承载 JSON 编码的原始记录，Parse 直接解码。
type stubProvider struct {
	records  []domain.PlayerRecord
	fetchErr error
	fetches  *atomic.Int32
}

func newStub(records []domain.PlayerRecord) stubProvider {
	return stubProvider{records: records, fetches: &atomic.Int32{}}
}

func (p stubProvider) Name() string { return "stub" }

func (p stubProvider) Fetch(ctx context.Context, progress provider.Progress) ([]domain.Card, error) {
	p.fetches.Add(1)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	cards := make([]domain.Card, 0, len(p.records))
	for i, r := range p.records {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		cards = append(cards, domain.Card{Index: i, HTML: string(b)})
		if progress != nil {
			progress(i+1, len(p.records))
		}
	}
	return cards, nil
}

func (p stubProvider) Parse(card domain.Card) (domain.PlayerRecord, error) {
	var r domain.PlayerRecord
	if err := json.Unmarshal([]byte(card.HTML), &r); err != nil {
		return domain.PlayerRecord{}, err
	}
	r.Rank = card.Index + 1
	return r, nil
}

func sampleRecords() []domain.PlayerRecord {
	return []domain.PlayerRecord{
		{Name: "Erling Haaland", Nationality: "Noruega", Team: "Manchester City", League: "Premier League", Age: "22 años", Position: "ATACANTE"},
		{Name: "Thibaut Courtois", Nationality: "Bélgica", Team: "Real Madrid", League: "LaLiga", Age: "31 años", Position: "PORTERO"},
		{Name: "Kevin De Bruyne", Nationality: "Bélgica", Team: "Manchester City", League: "Premier League", Age: "31 años", Position: "CENTROCAMPISTA"},
		{Name: "Vinicius Jr.", Nationality: "Brasil", Team: "Real Madrid", League: "LaLiga", Age: "22 años", Position: "ATACANTE"},
		{Name: "Khvicha Kvaratskhelia", Nationality: "Georgia", Team: "Napoli", League: "Serie A", Age: "22 años", Position: "ATACANTE"},
	}
}

// writeWorld 生成一个最小的地图数据集（ASCII 名称，编码无关）。
func writeWorld(t *testing.T, root string, countries ...string) string {
	t.Helper()
	dir := filepath.Join(root, "Paises_Mundo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "Paises_Mundo.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 50)}))
	for i, c := range countries {
		x := float64(i * 2)
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{{
			{X: x, Y: 0}, {X: x, Y: 1}, {X: x + 1, Y: 1}, {X: x + 1, Y: 0}, {X: x, Y: 0},
		}}))
		row := w.Write(&poly)
		require.NoError(t, w.WriteAttribute(int(row), 0, c))
	}
	w.Close()
	return path
}

func testConfig(root string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Path:      root,
		URL:       config.DefaultURL,
		Positions: domain.DefaultPositionCodes(),
		Shapes: config.ShapeSettings{
			Path:      filepath.Join(root, "Paises_Mundo", "Paises_Mundo.shp"),
			NameField: "NAME",
			Encoding:  config.DefaultShapeEncoding,
			Exclude:   config.DefaultExclude(),
		},
		Render: config.RenderSettings{
			Format:   "svg",
			Title:    config.DefaultTitle,
			Footnote: config.DefaultFootnote,
		},
	}
}

func readReport(t *testing.T, root string) domain.RunReport {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, "cache", "report.json"))
	require.NoError(t, err)
	var rr domain.RunReport
	require.NoError(t, json.Unmarshal(b, &rr))
	return rr
}

func TestExecute_LiveThenCache(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega", "Belgica", "Brasil", "Antarctica")
	p := newStub(sampleRecords())
	eff := testConfig(root)

	rr := Execute(context.Background(), eff, p)
	require.Equal(t, domain.StatusOK, rr.Status, "error=%s %s", rr.ErrorCode, rr.ErrorMsg)
	require.Equal(t, domain.SourceLive, rr.Source)
	require.NotEmpty(t, rr.RunID)
	require.Equal(t, 5, rr.Summary.Players)
	require.Equal(t, domain.FreqTable{{Value: "FOR", N: 3}, {Value: "GK", N: 1}, {Value: "MID", N: 1}}, rr.Tables.Position)
	require.Equal(t, domain.FreqTable{{Value: "22", N: 3}, {Value: "31", N: 2}}, rr.Tables.Age)
	require.Equal(t, filepath.Join(root, "out", "dashboard.svg"), rr.Outputs.Dashboard)

	// "Bélgica" 与 "Belgica" 不相等：记为未匹配，并给出建议。
	names := map[string]domain.UnmatchedCountry{}
	for _, u := range rr.UnmatchedCountries {
		names[u.Name] = u
	}
	require.Contains(t, names, "Bélgica")
	require.Equal(t, "Belgica", names["Bélgica"].Suggestion)
	require.Contains(t, names, "Georgia")

	// 5 != 100：只告警。
	require.NotEmpty(t, rr.Warnings)

	svg, err := os.ReadFile(rr.Outputs.Dashboard)
	require.NoError(t, err)
	require.Contains(t, string(svg), "<svg")

	onDisk := readReport(t, root)
	require.Equal(t, rr.RunID, onDisk.RunID)

	_, ok, err := cache.ReadCards(context.Background(), cache.New(root, true), "stub")
	require.NoError(t, err)
	require.True(t, ok, "live 运行后应写入卡片缓存")

	// 第二次：默认仍然实时抓取，缓存不会让页面被跳过。
	rr2 := Execute(context.Background(), eff, p)
	require.Equal(t, domain.SourceLive, rr2.Source)
	require.Equal(t, int32(2), p.fetches.Load())
	require.NotEqual(t, rr.RunID, rr2.RunID)

	// from_cache：重放缓存，不再调用 Fetch。
	eff.FromCache = true
	rr3 := Execute(context.Background(), eff, p)
	require.Equal(t, domain.StatusOK, rr3.Status, "error=%s %s", rr3.ErrorCode, rr3.ErrorMsg)
	require.Equal(t, domain.SourceCache, rr3.Source)
	require.Equal(t, int32(2), p.fetches.Load())
	require.Equal(t, rr.Tables, rr3.Tables)
}

func TestExecute_FromCacheWithoutCacheFetchesLive(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega")
	p := newStub(sampleRecords())
	eff := testConfig(root)
	eff.FromCache = true

	rr := Execute(context.Background(), eff, p)
	require.Equal(t, domain.StatusOK, rr.Status, "error=%s %s", rr.ErrorCode, rr.ErrorMsg)
	require.Equal(t, domain.SourceLive, rr.Source)
	require.Equal(t, int32(1), p.fetches.Load())
	require.Contains(t, rr.Warnings, "没有卡片缓存，改为实时抓取")
}

func TestExecute_FetchTimeoutClassified(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega")
	p := newStub(nil)
	p.fetchErr = &browser.TimeoutError{What: "元素可交互 .contenedorEscudo", Timeout: 15 * time.Second}

	rr := Execute(context.Background(), testConfig(root), p)
	require.Equal(t, domain.StatusFailed, rr.Status)
	require.Equal(t, domain.ErrCodeWaitTimeout, rr.ErrorCode)

	// 失败也写 report，但不写仪表盘。
	require.Equal(t, domain.ErrCodeWaitTimeout, readReport(t, root).ErrorCode)
	_, err := os.Stat(filepath.Join(root, "out", "dashboard.svg"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExecute_StrictPositions(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega")
	recs := sampleRecords()
	recs[0].Position = "LATERAL"

	eff := testConfig(root)
	rr := Execute(context.Background(), eff, newStub(recs))
	require.Equal(t, domain.StatusOK, rr.Status)
	require.Equal(t, []domain.UnmappedPosition{{Value: "LATERAL", Count: 1}}, rr.UnmappedPositions)
	require.Contains(t, rr.Tables.Position, domain.Count{Value: "LATERAL", N: 1})

	eff.StrictPositions = true
	rr = Execute(context.Background(), eff, newStub(recs))
	require.Equal(t, domain.StatusFailed, rr.Status)
	require.Equal(t, domain.ErrCodePositionUnmapped, rr.ErrorCode)
}

func TestExecute_MissingShapes(t *testing.T) {
	root := t.TempDir()
	rr := Execute(context.Background(), testConfig(root), newStub(sampleRecords()))
	require.Equal(t, domain.StatusFailed, rr.Status)
	require.Equal(t, domain.ErrCodeShapeLoadFailed, rr.ErrorCode)
	// 聚合阶段已完成：频数表仍然进入 report。
	require.Equal(t, 5, rr.Summary.Players)
}

func TestExecute_CorruptCacheFallsBackToLive(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega")
	require.NoError(t, cache.New(root, false).Write(context.Background(), "stub", cache.CardsName, []byte("{")))

	p := newStub(sampleRecords())
	eff := testConfig(root)
	eff.FromCache = true
	rr := Execute(context.Background(), eff, p)
	require.Equal(t, domain.StatusOK, rr.Status, "error=%s %s", rr.ErrorCode, rr.ErrorMsg)
	require.Equal(t, domain.SourceLive, rr.Source)
	require.Equal(t, int32(1), p.fetches.Load())
}

func TestExecute_OutputConflict(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega")
	require.NoError(t, os.WriteFile(filepath.Join(root, "out"), []byte("x"), 0o644))

	p := newStub(sampleRecords())
	rr := Execute(context.Background(), testConfig(root), p)
	require.Equal(t, domain.ErrCodeIOFailed, rr.ErrorCode)
	require.Equal(t, int32(0), p.fetches.Load(), "输出路径冲突时不应启动抓取")
}

func TestExecute_ExportSQLite(t *testing.T) {
	root := t.TempDir()
	writeWorld(t, root, "Noruega")
	eff := testConfig(root)
	eff.Export = config.ExportSettings{Driver: export.DriverSQLite, DSN: filepath.Join(root, "out", "marcatop.db")}

	rr := Execute(context.Background(), eff, newStub(sampleRecords()))
	require.Equal(t, domain.StatusOK, rr.Status, "error=%s %s", rr.ErrorCode, rr.ErrorMsg)
	require.Equal(t, eff.Export.DSN, rr.Outputs.Export)

	e, err := export.Open(export.DriverSQLite, eff.Export.DSN)
	require.NoError(t, err)
	defer e.Close()
	players, err := e.Players(context.Background(), rr.RunID)
	require.NoError(t, err)
	require.Len(t, players, 5)
	require.Equal(t, "FOR", players[0].Position)
	require.Equal(t, "22", players[0].Age)
}

func TestExecute_Canceled(t *testing.T) {
	root := t.TempDir()
	p := newStub(nil)
	p.fetchErr = fmt.Errorf("navigate: %w", context.Canceled)

	rr := Execute(context.Background(), testConfig(root), p)
	require.Equal(t, domain.ErrCodeCanceled, rr.ErrorCode)
}
