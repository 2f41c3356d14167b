package provider

import (
	"context"

	"github.com/John-Robertt/marcatop/internal/domain"
)

// Progress 在每捕获一张卡片后被调用（done 从 1 开始）。
type Progress func(done, total int)

// Provider 把“站点变化”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 PlayerRecord。
//
// 约束：
// - Fetch 负责驱动浏览器，只返回按页面顺序排列的卡片片段，不做解析
// - Parse 必须是纯函数：相同卡片 => 相同记录（缓存回放依赖这一点）
// - Fetch 内部获得的浏览器资源必须在返回前释放（无论成功失败）
type Provider interface {
	Name() string
	Fetch(ctx context.Context, progress Progress) ([]domain.Card, error)
	Parse(card domain.Card) (domain.PlayerRecord, error)
}
