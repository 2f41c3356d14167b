package planner

import (
	"os"
	"path/filepath"

	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/infra/fsx"
)

// PlanRun 基于生效配置与缓存现状生成确定性的执行计划（不做任何写入）。
//
// 规则：
// - 默认：live（驱动浏览器，每次都看实时页面）
// - from_cache 且缓存命中：cache（直接重放缓存卡片）
func PlanRun(eff config.EffectiveConfig, cacheHit bool) domain.RunPlan {
	source := domain.SourceLive
	if eff.FromCache && cacheHit {
		source = domain.SourceCache
	}
	format := eff.Render.Format
	if format == "" {
		format = config.DefaultFormat
	}
	return domain.RunPlan{
		Source:       source,
		CacheDir:     filepath.Join(eff.Path, "cache"),
		Dashboard:    filepath.Join(eff.Path, "out", "dashboard."+format),
		Report:       filepath.Join(eff.Path, "cache", "report.json"),
		ExportDriver: eff.Export.Driver,
		ExportDSN:    eff.Export.DSN,
	}
}

// CheckTargets 在启动浏览器之前检查输出路径：目录位置被文件占用、文件位置被目录占用都直接失败。
// 不存在的路径视为可写（由写入时创建）。
func CheckTargets(plan domain.RunPlan) error {
	for _, dir := range []string{plan.CacheDir, filepath.Dir(plan.Dashboard)} {
		fi, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if !fi.IsDir() {
			return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
		}
	}
	for _, f := range []string{plan.Dashboard, plan.Report} {
		fi, err := os.Lstat(f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if fi.IsDir() {
			return &fsx.PathTypeConflictError{Path: f, Want: "file", Got: "dir"}
		}
	}
	return nil
}
