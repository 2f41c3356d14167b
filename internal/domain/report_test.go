package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Tables: Tables{
			Nationality: FreqTable{{Value: "España", N: 2}, {Value: "Inglaterra", N: 1}},
			Team:        FreqTable{{Value: "Real Madrid", N: 3}},
		},
		UnmappedPositions: []UnmappedPosition{
			{Value: "LATERAL", Count: 1},
			{Value: "EXTREMO", Count: 2},
		},
		UnmatchedCountries: []UnmatchedCountry{
			{Name: "inglaterra", Count: 1},
			{Name: "gales", Count: 1},
			{Name: "escocia", Count: 3},
		},
	}

	r.Finalize()

	if r.Status != StatusOK {
		t.Fatalf("期望 status=ok，实际 %q", r.Status)
	}
	if r.UnmappedPositions[0].Value != "EXTREMO" || r.UnmappedPositions[1].Value != "LATERAL" {
		t.Fatalf("unmapped_positions 排序不符合契约：%+v", r.UnmappedPositions)
	}
	got := []string{r.UnmatchedCountries[0].Name, r.UnmatchedCountries[1].Name, r.UnmatchedCountries[2].Name}
	if got[0] != "escocia" || got[1] != "gales" || got[2] != "inglaterra" {
		t.Fatalf("unmatched_countries 排序不符合契约：%v", got)
	}
	if r.Summary.Players != 3 || r.Summary.Nationalities != 2 || r.Summary.Teams != 1 || r.Summary.Leagues != 0 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}
	if r.Summary.UnmappedPositions != 2 || r.Summary.UnmatchedCountries != 3 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"started_at":"2026-02-09T02:00:00Z"`)) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	// 空表/空列表必须输出 []，不能是 null。
	if !bytes.Contains(b, []byte(`"league":[]`)) || !bytes.Contains(b, []byte(`"warnings":[]`)) {
		t.Fatalf("空列表应输出 []：%s", string(b))
	}
}

func TestRunReport_Fail_KeepsFirst(t *testing.T) {
	var r RunReport
	r.Fail(ErrCodeWaitTimeout, "等待超时")
	r.Fail(ErrCodeRenderFailed, "连锁失败")
	r.Finalize()

	if r.Status != StatusFailed || r.ErrorCode != ErrCodeWaitTimeout {
		t.Fatalf("期望保留第一次失败，实际 status=%q code=%q", r.Status, r.ErrorCode)
	}
}

func TestFreqTable_Total(t *testing.T) {
	ft := FreqTable{{Value: "FOR", N: 2}, {Value: "GK", N: 1}}
	if ft.Total() != 3 {
		t.Fatalf("期望 total=3，实际 %d", ft.Total())
	}
	if (FreqTable{}).Total() != 0 {
		t.Fatalf("空表合计应为 0")
	}
}
