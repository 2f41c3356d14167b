package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/John-Robertt/marcatop/internal/domain"
)

func TestStore_ReadWrite(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s := New(root, false)
	if err := s.Write(ctx, "marca", CardsName, []byte(`{}`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.Read(ctx, "marca", CardsName)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if string(b) != `{}` {
		t.Fatalf("内容不一致：%q", string(b))
	}

	path, err := s.Path("marca", CardsName)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}
}

func TestStore_Miss(t *testing.T) {
	_, ok, err := New(t.TempDir(), false).Read(context.Background(), "marca", CardsName)
	if err != nil || ok {
		t.Fatalf("期望未命中，实际 ok=%v err=%v", ok, err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()

	s := New(root, true)
	err := s.Write(context.Background(), "marca", CardsName, []byte(`{"ok":true}`))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, err := s.Path("marca", CardsName)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_RejectTraversal(t *testing.T) {
	s := New(t.TempDir(), false)
	for _, c := range [][2]string{{"../x", "a"}, {"marca", "../a"}, {"marca", ".."}, {"", "a"}, {"marca", "a/b"}} {
		if _, err := s.Path(c[0], c[1]); err == nil {
			t.Fatalf("期望拒绝 provider=%q name=%q", c[0], c[1])
		}
	}
}

func TestCards_RoundTripAndCorrupt(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir(), false)

	if _, ok, err := ReadCards(ctx, s, "marca"); ok || err != nil {
		t.Fatalf("空缓存应未命中：ok=%v err=%v", ok, err)
	}

	in := CardSet{
		Provider:  "marca",
		URL:       "https://www.marca.com/futbol/top-100.html",
		FetchedAt: time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 3600)),
		Cards:     []domain.Card{{Index: 0, HTML: `<div id="nombre">A</div>`}},
	}
	if err := WriteCards(ctx, s, in); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	got, ok, err := ReadCards(ctx, s, "marca")
	if err != nil || !ok {
		t.Fatalf("期望命中：ok=%v err=%v", ok, err)
	}
	if got.FetchedAt.Location() != time.UTC || !got.FetchedAt.Equal(in.FetchedAt) {
		t.Fatalf("fetched_at 应为 UTC：%v", got.FetchedAt)
	}
	if len(got.Cards) != 1 || got.Cards[0] != in.Cards[0] {
		t.Fatalf("卡片不一致：%+v", got.Cards)
	}

	if err := s.Write(ctx, "marca", CardsName, []byte(`{`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, _, err := ReadCards(ctx, s, "marca"); err == nil {
		t.Fatalf("损坏的缓存应返回错误")
	}
}
