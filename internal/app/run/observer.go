package run

import (
	"time"

	"github.com/John-Robertt/marcatop/internal/config"
)

// Observer 用于把“运行进度/阶段”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - OnCardDone 来自浏览器抓取循环，与其他事件不在同一 goroutine 时实现方需自行加锁
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（用于打印阶段统计与耗时）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnCardDone 在每张卡片捕获完成时调用；total 为页面上的卡片总数。
	OnCardDone(done, total int, dur time.Duration)
}

// 阶段名（OnPhaseDone 的 name）。
const (
	PhasePlan      = "plan"
	PhaseFetch     = "fetch"
	PhaseAggregate = "aggregate"
	PhaseShapes    = "shapes"
	PhaseRender    = "render"
	PhaseExport    = "export"
)
