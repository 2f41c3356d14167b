package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/John-Robertt/marcatop/internal/domain"
)

type stubProvider struct {
	cards    []domain.Card
	fetchErr error
	// badIndex 指定的卡片解析失败（-1 表示全部成功）
	badIndex int

	fetchCalls int
	parseCalls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(ctx context.Context, progress Progress) ([]domain.Card, error) {
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	for i := range p.cards {
		if progress != nil {
			progress(i+1, len(p.cards))
		}
	}
	return p.cards, nil
}

func (p *stubProvider) Parse(card domain.Card) (domain.PlayerRecord, error) {
	p.parseCalls++
	if card.Index == p.badIndex {
		return domain.PlayerRecord{}, &MissingFieldError{Field: "name", Selector: "#nombre"}
	}
	return domain.PlayerRecord{Rank: card.Index + 1, Name: card.HTML}, nil
}

func cards(n int) []domain.Card {
	out := make([]domain.Card, n)
	for i := range out {
		out[i] = domain.Card{Index: i, HTML: string(rune('A' + i))}
	}
	return out
}

func TestFetchParse_OrderAndProgress(t *testing.T) {
	p := &stubProvider{cards: cards(3), badIndex: -1}

	var seen []int
	recs, got, err := FetchParse(context.Background(), p, func(done, total int) {
		if total != 3 {
			t.Fatalf("期望 total=3，实际 %d", total)
		}
		seen = append(seen, done)
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(recs) != 3 || len(got) != 3 {
		t.Fatalf("期望 3 条记录，实际 recs=%d cards=%d", len(recs), len(got))
	}
	for i, r := range recs {
		if r.Rank != i+1 {
			t.Fatalf("记录应保持页面顺序：%+v", recs)
		}
	}
	if len(seen) != 3 || seen[2] != 3 {
		t.Fatalf("progress 回调不符合预期：%v", seen)
	}
}

func TestFetchParse_FetchError(t *testing.T) {
	p := &stubProvider{fetchErr: errors.New("nope"), badIndex: -1}

	_, _, err := FetchParse(context.Background(), p, nil)
	var pe *Error
	if !errors.As(err, &pe) || pe.Stage != StageFetch {
		t.Fatalf("期望 fetch 阶段错误，实际 %v", err)
	}
	if p.parseCalls != 0 {
		t.Fatalf("fetch 失败后不应再解析")
	}
}

func TestFetchParse_ParseErrorKeepsCards(t *testing.T) {
	p := &stubProvider{cards: cards(3), badIndex: 1}

	recs, got, err := FetchParse(context.Background(), p, nil)
	var pe *Error
	if !errors.As(err, &pe) || pe.Stage != StageParse {
		t.Fatalf("期望 parse 阶段错误，实际 %v", err)
	}
	var mf *MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("应保留底层 MissingFieldError：%v", err)
	}
	if recs != nil || len(got) != 3 {
		t.Fatalf("解析失败时不返回记录但保留卡片：recs=%v cards=%d", recs, len(got))
	}
}

func TestParseAll_Empty(t *testing.T) {
	_, err := ParseAll(&stubProvider{badIndex: -1}, nil)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}
