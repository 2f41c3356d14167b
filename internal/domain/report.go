package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const (
	ErrCodePageLoadFailed    = "page_load_failed"
	ErrCodeElementNotFound   = "element_not_found"
	ErrCodeWaitTimeout       = "wait_timeout"
	ErrCodeParseFailed       = "parse_failed"
	ErrCodePositionUnmapped  = "position_unmapped"
	ErrCodeShapeLoadFailed   = "shape_load_failed"
	ErrCodeDataMismatch      = "data_mismatch"
	ErrCodeRenderFailed      = "render_failed"
	ErrCodeExportFailed      = "export_failed"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeCanceled          = "canceled"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Path   string `json:"path"`
	URL    string `json:"url"`
	Source string `json:"source"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Summary ReportSummary `json:"summary"`
	Tables  Tables        `json:"tables"`

	UnmappedPositions  []UnmappedPosition `json:"unmapped_positions"`
	UnmatchedCountries []UnmatchedCountry `json:"unmatched_countries"`
	Warnings           []string           `json:"warnings"`

	Outputs ReportOutputs `json:"outputs"`
}

type ReportSummary struct {
	Players            int `json:"players"`
	Nationalities      int `json:"nationalities"`
	Teams              int `json:"teams"`
	Leagues            int `json:"leagues"`
	UnmappedPositions  int `json:"unmapped_positions"`
	UnmatchedCountries int `json:"unmatched_countries"`
}

type ReportOutputs struct {
	Dashboard string `json:"dashboard"`
	Export    string `json:"export"`
}

// Fail 把报告标记为失败（只保留第一次失败：后续失败通常是连锁反应）。
func (r *RunReport) Fail(code, msg string) {
	if r.Status == StatusFailed {
		return
	}
	r.Status = StatusFailed
	r.ErrorCode = code
	r.ErrorMsg = msg
}

// Warn 追加一条警告。
func (r *RunReport) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Finalize 做四件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) 列表字段稳定排序，nil 切片统一为空切片（JSON 输出 [] 而不是 null）
// 3) summary 由 tables 与列表字段计算得出
// 4) 未失败的报告 status=ok
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Status == "" {
		r.Status = StatusOK
	}

	if r.UnmappedPositions == nil {
		r.UnmappedPositions = []UnmappedPosition{}
	}
	if r.UnmatchedCountries == nil {
		r.UnmatchedCountries = []UnmatchedCountry{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}

	sort.SliceStable(r.UnmappedPositions, func(i, j int) bool {
		return r.UnmappedPositions[i].Value < r.UnmappedPositions[j].Value
	})
	// 未匹配国家：人数多的排前面（更值得优先修正）。
	sort.SliceStable(r.UnmatchedCountries, func(i, j int) bool {
		a, b := r.UnmatchedCountries[i], r.UnmatchedCountries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})

	for _, c := range Columns() {
		if r.Tables.Get(c) == nil {
			r.Tables.Set(c, FreqTable{})
		}
	}

	r.Summary = ReportSummary{
		Players:            r.Tables.Nationality.Total(),
		Nationalities:      len(r.Tables.Nationality),
		Teams:              len(r.Tables.Team),
		Leagues:            len(r.Tables.League),
		UnmappedPositions:  len(r.UnmappedPositions),
		UnmatchedCountries: len(r.UnmatchedCountries),
	}
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
