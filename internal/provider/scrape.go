package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/marcatop/internal/domain"
)

// Stage 标识 provider 失败发生的阶段。
const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// FetchParse 抓取全部卡片并逐张解析。
//
// 返回值：
// - records：与 cards 一一对应、保持页面顺序
// - cards：原始卡片片段（用于写缓存；解析失败时也会返回，便于排查）
func FetchParse(ctx context.Context, p Provider, progress Progress) (records []domain.PlayerRecord, cards []domain.Card, err error) {
	if p == nil {
		return nil, nil, errors.New("provider 不能为空")
	}
	cards, err = p.Fetch(ctx, progress)
	if err != nil {
		return nil, nil, &Error{Provider: p.Name(), Stage: StageFetch, Err: err}
	}
	records, err = ParseAll(p, cards)
	if err != nil {
		return nil, cards, err
	}
	return records, cards, nil
}

// ParseAll 解析已捕获（或从缓存读出）的卡片；任一卡片失败即整体失败。
func ParseAll(p Provider, cards []domain.Card) ([]domain.PlayerRecord, error) {
	if len(cards) == 0 {
		return nil, &Error{Provider: p.Name(), Stage: StageParse, Err: errors.New("没有任何卡片")}
	}
	out := make([]domain.PlayerRecord, 0, len(cards))
	for _, c := range cards {
		r, err := p.Parse(c)
		if err != nil {
			return nil, &Error{Provider: p.Name(), Stage: StageParse, Err: fmt.Errorf("第 %d 张卡片：%w", c.Index+1, err)}
		}
		out = append(out, r)
	}
	return out, nil
}

// Error 是 provider 阶段的可追溯错误。
// 上层据此把失败归类为 error_code 并写入 report。
type Error struct {
	Provider string
	Stage    string // StageFetch 或 StageParse
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
