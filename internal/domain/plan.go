package domain

// 数据来源。
const (
	SourceLive  = "live"  // 本次运行驱动浏览器抓取
	SourceCache = "cache" // 复用上次抓取的卡片缓存
)

// RunPlan 是一次运行的确定性计划（只描述，不执行）。
type RunPlan struct {
	Source string

	// 以下均为绝对路径。
	CacheDir  string
	Dashboard string
	Report    string

	// Export 为空表示不导出。
	ExportDriver string
	ExportDSN    string
}
