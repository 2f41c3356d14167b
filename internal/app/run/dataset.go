package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/John-Robertt/marcatop/internal/app"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/geo"
	"github.com/John-Robertt/marcatop/internal/infra/cache"
	"github.com/John-Robertt/marcatop/internal/infra/httpx"
	"github.com/John-Robertt/marcatop/internal/provider"
)

// ErrNoCache 表示没有可重放的卡片缓存（需要先 run 一次）。
var ErrNoCache = errors.New("没有卡片缓存，请先执行 marcatop run")

// OpenCache 按配置选择缓存后端：配置了 redis_url 用 redis，否则用 <path>/cache。
// 返回的 close 总是可调用。
func OpenCache(eff config.EffectiveConfig, readOnly bool) (cache.Backend, func(), error) {
	if eff.Cache.RedisURL != "" {
		r, err := cache.NewRedis(eff.Cache.RedisURL, eff.Cache.TTL, readOnly)
		if err != nil {
			return nil, func() {}, err
		}
		return r, func() { _ = r.Close() }, nil
	}
	return cache.New(eff.Path, readOnly), func() {}, nil
}

// Dataset 是规范化后的数据集与频数表。
type Dataset struct {
	Cards      cache.CardSet
	Normalized app.Normalized
	Tables     domain.Tables
}

// Aggregate 对原始记录做规范化并生成频数表（含合计校验）。
func Aggregate(records []domain.PlayerRecord, positions map[string]string) (app.Normalized, domain.Tables, error) {
	if positions == nil {
		positions = domain.DefaultPositionCodes()
	}
	norm := app.Normalize(records, positions)
	tables := app.BuildTables(norm.Records)
	if err := app.CheckTotals(tables, len(norm.Records)); err != nil {
		return norm, tables, err
	}
	return norm, tables, nil
}

// LoadCached 只从缓存重放（不启动浏览器），供 tables/serve 使用。
func LoadCached(ctx context.Context, eff config.EffectiveConfig, p provider.Provider) (Dataset, error) {
	backend, closeFn, err := OpenCache(eff, true)
	if err != nil {
		return Dataset{}, err
	}
	defer closeFn()

	cs, ok, err := cache.ReadCards(ctx, backend, p.Name())
	if err != nil {
		return Dataset{}, err
	}
	if !ok {
		return Dataset{}, fmt.Errorf("%w（%s）", ErrNoCache, backend.Describe(p.Name(), cache.CardsName))
	}
	records, err := provider.ParseAll(p, cs.Cards)
	if err != nil {
		return Dataset{}, err
	}
	norm, tables, err := Aggregate(records, eff.Positions)
	if err != nil {
		return Dataset{}, err
	}
	return Dataset{Cards: cs, Normalized: norm, Tables: tables}, nil
}

// LoadShapes 确保地图数据在本地（必要时下载），加载并与国籍频数表做左连接。
func LoadShapes(ctx context.Context, eff config.EffectiveConfig, nationality domain.FreqTable) ([]geo.JoinedShape, []domain.UnmatchedCountry, error) {
	if eff.Shapes.URL != "" {
		rc, err := httpx.NewResty(eff.ProxyURL, 0)
		if err != nil {
			return nil, nil, &geo.Error{Path: eff.Shapes.Path, Err: err}
		}
		if err := geo.Ensure(ctx, rc, eff.Shapes.Path, eff.Shapes.URL, slog.Default()); err != nil {
			return nil, nil, err
		}
	}
	shapes, err := geo.Load(geo.Options{
		Path:      eff.Shapes.Path,
		NameField: eff.Shapes.NameField,
		Encoding:  eff.Shapes.Encoding,
		Exclude:   eff.Shapes.Exclude,
	})
	if err != nil {
		return nil, nil, err
	}
	joined, unmatched := geo.Join(shapes, nationality)
	return joined, unmatched, nil
}
