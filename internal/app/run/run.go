package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/marcatop/internal/app"
	"github.com/John-Robertt/marcatop/internal/app/planner"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/export"
	"github.com/John-Robertt/marcatop/internal/infra/cache"
	"github.com/John-Robertt/marcatop/internal/infra/fsx"
	"github.com/John-Robertt/marcatop/internal/provider"
	"github.com/John-Robertt/marcatop/internal/render"
)

// ExpectedCards 是榜单的名义卡片数；实际数量不同只告警，不失败。
const ExpectedCards = 100

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 流水线严格串行：任一阶段失败即停止，后续阶段不再执行；report 总会写出。
func Execute(ctx context.Context, eff config.EffectiveConfig, p provider.Provider) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, p, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, p provider.Provider, obs Observer) domain.RunReport {
	if obs != nil {
		obs.OnStart(eff)
	}
	if obs == nil {
		obs = nopObserver{}
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Path:      eff.Path,
		URL:       eff.URL,
		StartedAt: time.Now().UTC(),
	}
	r := &runner{eff: eff, p: p, obs: obs, rr: &rr, log: slog.Default().With("run_id", rr.RunID)}
	plan := r.execute(ctx)

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	if err := writeReport(plan.Report, rr); err != nil {
		rr.Fail(domain.ErrCodeIOFailed, fmt.Sprintf("写入 report 失败：%v", err))
		rr.Finalize()
	}
	return rr
}

type runner struct {
	eff config.EffectiveConfig
	p   provider.Provider
	obs Observer
	rr  *domain.RunReport
	log *slog.Logger
}

// execute 依次执行各阶段，返回实际采用的计划（report 路径由它决定）。
func (r *runner) execute(ctx context.Context) domain.RunPlan {
	eff, rr := r.eff, r.rr

	backend, closeCache, err := OpenCache(eff, false)
	if err != nil {
		rr.Fail(domain.ErrCodeIOFailed, fmt.Sprintf("打开缓存失败：%v", err))
		return planner.PlanRun(eff, false)
	}
	defer closeCache()

	// plan
	started := time.Now()
	var cached cache.CardSet
	hit := false
	if eff.FromCache {
		cs, ok, err := cache.ReadCards(ctx, backend, r.p.Name())
		switch {
		case err != nil:
			r.warn(fmt.Sprintf("卡片缓存不可用，改为实时抓取：%v", err))
		case !ok:
			r.warn("没有卡片缓存，改为实时抓取")
		}
		cached, hit = cs, ok
	}
	plan := planner.PlanRun(eff, hit)
	rr.Source = plan.Source
	if err := planner.CheckTargets(plan); err != nil {
		rr.Fail(domain.ErrCodeIOFailed, err.Error())
		return plan
	}
	r.obs.OnPhaseDone(PhasePlan, map[string]any{
		"source":       plan.Source,
		"cached_cards": len(cached.Cards),
	}, time.Since(started))

	// fetch
	started = time.Now()
	records, ok := r.fetch(ctx, backend, plan, cached)
	if !ok {
		return plan
	}
	if len(records) != ExpectedCards {
		r.warn(fmt.Sprintf("卡片数量为 %d，预期 %d", len(records), ExpectedCards))
	}
	r.obs.OnPhaseDone(PhaseFetch, map[string]any{
		"source": plan.Source,
		"cards":  len(records),
	}, time.Since(started))

	// aggregate
	started = time.Now()
	norm, tables, err := Aggregate(records, eff.Positions)
	rr.UnmappedPositions = norm.UnmappedPositions
	for _, w := range norm.Warnings {
		r.warn(w)
	}
	for _, u := range norm.UnmappedPositions {
		r.log.Warn("位置未映射，原样保留", "value", u.Value, "count", u.Count)
	}
	if err != nil {
		var te *app.TotalsError
		if errors.As(err, &te) {
			rr.Fail(domain.ErrCodeDataMismatch, err.Error())
		} else {
			rr.Fail(domain.ErrCodeIOFailed, err.Error())
		}
		return plan
	}
	if eff.StrictPositions && len(norm.UnmappedPositions) > 0 {
		rr.Fail(domain.ErrCodePositionUnmapped, fmt.Sprintf("存在未映射的位置（strict_positions=true）：%s", unmappedList(norm.UnmappedPositions)))
		return plan
	}
	rr.Tables = tables
	r.obs.OnPhaseDone(PhaseAggregate, map[string]any{
		"players":       len(norm.Records),
		"nationalities": len(tables.Nationality),
		"teams":         len(tables.Team),
		"leagues":       len(tables.League),
		"unmapped":      len(norm.UnmappedPositions),
	}, time.Since(started))

	// shapes
	started = time.Now()
	joined, unmatched, err := LoadShapes(ctx, eff, tables.Nationality)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rr.Fail(domain.ErrCodeCanceled, "运行被取消")
		} else {
			rr.Fail(domain.ErrCodeShapeLoadFailed, err.Error())
		}
		return plan
	}
	rr.UnmatchedCountries = unmatched
	for _, u := range unmatched {
		if u.Suggestion != "" {
			r.log.Warn("国籍在地图中找不到对应国家", "name", u.Name, "count", u.Count, "suggestion", u.Suggestion)
		} else {
			r.log.Warn("国籍在地图中找不到对应国家", "name", u.Name, "count", u.Count)
		}
	}
	r.obs.OnPhaseDone(PhaseShapes, map[string]any{
		"shapes":    len(joined),
		"unmatched": len(unmatched),
	}, time.Since(started))

	// render
	started = time.Now()
	b, err := render.Bytes(eff.Render.Format, render.Data{
		Title:    eff.Render.Title,
		Footnote: eff.Render.Footnote,
		Tables:   tables,
		Shapes:   joined,
	})
	if err != nil {
		rr.Fail(domain.ErrCodeRenderFailed, fmt.Sprintf("绘制仪表盘失败：%v", err))
		return plan
	}
	if err := fsx.WriteFileAtomic(filepath.Dir(plan.Dashboard), filepath.Base(plan.Dashboard), b); err != nil {
		rr.Fail(domain.ErrCodeIOFailed, fmt.Sprintf("写入仪表盘失败：%v", err))
		return plan
	}
	rr.Outputs.Dashboard = plan.Dashboard
	r.obs.OnPhaseDone(PhaseRender, map[string]any{
		"format": eff.Render.Format,
		"bytes":  len(b),
	}, time.Since(started))

	// export
	if plan.ExportDriver == "" {
		return plan
	}
	started = time.Now()
	if err := r.export(ctx, plan, norm.Records, tables); err != nil {
		rr.Fail(domain.ErrCodeExportFailed, err.Error())
		return plan
	}
	rr.Outputs.Export = redactDSN(plan.ExportDriver, plan.ExportDSN)
	r.obs.OnPhaseDone(PhaseExport, map[string]any{
		"driver":  plan.ExportDriver,
		"players": len(norm.Records),
	}, time.Since(started))
	return plan
}

// fetch 按计划得到原始记录：cache 直接重放；live 驱动浏览器并写回缓存。
func (r *runner) fetch(ctx context.Context, backend cache.Backend, plan domain.RunPlan, cached cache.CardSet) ([]domain.PlayerRecord, bool) {
	if plan.Source == domain.SourceCache {
		records, err := provider.ParseAll(r.p, cached.Cards)
		if err != nil {
			code, msg := classifyProviderError(err)
			r.rr.Fail(code, msg+"（去掉 --from-cache 可重新抓取）")
			return nil, false
		}
		return records, true
	}

	if r.eff.Browser.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.eff.Browser.Timeout)
		defer cancel()
	}

	last := time.Now()
	progress := func(done, total int) {
		now := time.Now()
		r.obs.OnCardDone(done, total, now.Sub(last))
		last = now
	}
	records, cards, err := provider.FetchParse(ctx, r.p, progress)

	// 解析失败也写缓存：修好解析规则后可以直接重放，不必再开浏览器。
	if len(cards) > 0 {
		cs := cache.CardSet{Provider: r.p.Name(), URL: r.eff.URL, FetchedAt: time.Now(), Cards: cards}
		if werr := cache.WriteCards(context.WithoutCancel(ctx), backend, cs); werr != nil {
			r.warn(fmt.Sprintf("写入卡片缓存失败：%v", werr))
		} else {
			r.log.Debug("已写入卡片缓存", "target", backend.Describe(r.p.Name(), cache.CardsName), "cards", len(cards))
		}
	}
	if err != nil {
		code, msg := classifyProviderError(err)
		r.rr.Fail(code, msg)
		return nil, false
	}
	return records, true
}

func (r *runner) export(ctx context.Context, plan domain.RunPlan, records []domain.PlayerRecord, tables domain.Tables) error {
	e, err := export.Open(plan.ExportDriver, plan.ExportDSN)
	if err != nil {
		return fmt.Errorf("打开导出数据库失败：%w", err)
	}
	defer e.Close()

	if err := e.Migrate(ctx); err != nil {
		return err
	}
	if err := e.Write(ctx, export.Run{
		ID:     r.rr.RunID,
		URL:    r.eff.URL,
		Source: plan.Source,
		At:     r.rr.StartedAt,
	}, records, tables); err != nil {
		return err
	}
	return e.Verify(ctx, r.rr.RunID, records)
}

func (r *runner) warn(msg string) {
	r.rr.Warn(msg)
	r.log.Warn(msg)
}

func unmappedList(us []domain.UnmappedPosition) string {
	out := ""
	for i, u := range us {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s×%d", u.Value, u.Count)
	}
	return out
}

func writeReport(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), b)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                   {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration) {}
func (nopObserver) OnCardDone(int, int, time.Duration)               {}
