package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/John-Robertt/marcatop/internal/domain"
)

// CardsName 是卡片缓存的文件名/键名。
const CardsName = "cards.json"

// CardSet 是一次抓取得到的全部卡片片段（Parse 可以从它完整重放）。
type CardSet struct {
	Provider  string        `json:"provider"`
	URL       string        `json:"url"`
	FetchedAt time.Time     `json:"fetched_at"`
	Cards     []domain.Card `json:"cards"`
}

// ReadCards 读取卡片缓存；未命中返回 ok=false。
func ReadCards(ctx context.Context, b Backend, provider string) (CardSet, bool, error) {
	raw, ok, err := b.Read(ctx, provider, CardsName)
	if err != nil || !ok {
		return CardSet{}, ok, err
	}
	var cs CardSet
	if err := json.Unmarshal(raw, &cs); err != nil {
		return CardSet{}, false, fmt.Errorf("卡片缓存损坏（%s）：%w", b.Describe(provider, CardsName), err)
	}
	if len(cs.Cards) == 0 {
		return CardSet{}, false, nil
	}
	return cs, true, nil
}

// WriteCards 写入卡片缓存（FetchedAt 统一为 UTC）。
func WriteCards(ctx context.Context, b Backend, cs CardSet) error {
	cs.FetchedAt = cs.FetchedAt.UTC()
	raw, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	return b.Write(ctx, cs.Provider, CardsName, raw)
}
