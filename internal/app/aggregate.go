package app

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/John-Robertt/marcatop/internal/domain"
)

// NormalizePosition 把站点的西语位置名映射为位置代码。
//
// 规则：
// - 精确匹配（区分大小写，不做 trim；解析层已规范空白）
// - 未命中映射表：原样返回，ok=false（由上层决定告警还是失败）
func NormalizePosition(raw string, codes map[string]string) (string, bool) {
	if c, ok := codes[raw]; ok {
		return c, true
	}
	return raw, false
}

// TruncateAge 取年龄字段的前两个字符（站点格式形如 "23 años"）。
// 不做 trim，空白由解析层规范；对两字符及以下的输入是幂等的。
func TruncateAge(s string) string {
	if utf8.RuneCountInString(s) <= 2 {
		return s
	}
	i := 0
	for n := 0; n < 2; n++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

// Normalized 是规范化后的数据集及其副产物。
type Normalized struct {
	Records           []domain.PlayerRecord
	UnmappedPositions []domain.UnmappedPosition
	Warnings          []string
}

// Normalize 对每条记录做位置映射与年龄截断（不修改输入切片）。
func Normalize(records []domain.PlayerRecord, codes map[string]string) Normalized {
	out := Normalized{
		Records: make([]domain.PlayerRecord, 0, len(records)),
	}
	unmapped := map[string]int{}

	for _, r := range records {
		pos, ok := NormalizePosition(r.Position, codes)
		if !ok {
			unmapped[r.Position]++
		}
		r.Position = pos

		age := TruncateAge(r.Age)
		if !isTwoDigits(age) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("第 %d 名 %s 的年龄 %q 不是两位数字", r.Rank, r.Name, r.Age))
		}
		r.Age = age

		out.Records = append(out.Records, r)
	}

	for v, n := range unmapped {
		out.UnmappedPositions = append(out.UnmappedPositions, domain.UnmappedPosition{Value: v, Count: n})
	}
	sort.Slice(out.UnmappedPositions, func(i, j int) bool {
		return out.UnmappedPositions[i].Value < out.UnmappedPositions[j].Value
	})
	return out
}

func isTwoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// Frequencies 统计某一列的频数。
//
// 排序（确定性）：
// - age 列：按取值升序
// - 其他列：按频数降序，频数相同按取值升序
func Frequencies(records []domain.PlayerRecord, col domain.Column) domain.FreqTable {
	index := make(map[string]int, 64)
	ft := make(domain.FreqTable, 0, 64)

	for _, r := range records {
		v := r.Value(col)
		if idx, ok := index[v]; ok {
			ft[idx].N++
			continue
		}
		index[v] = len(ft)
		ft = append(ft, domain.Count{Value: v, N: 1})
	}

	if col == domain.ColumnAge {
		sort.SliceStable(ft, func(i, j int) bool { return ft[i].Value < ft[j].Value })
		return ft
	}
	sort.SliceStable(ft, func(i, j int) bool {
		if ft[i].N != ft[j].N {
			return ft[i].N > ft[j].N
		}
		return ft[i].Value < ft[j].Value
	})
	return ft
}

// BuildTables 生成全部五张频数表。
func BuildTables(records []domain.PlayerRecord) domain.Tables {
	var t domain.Tables
	for _, c := range domain.Columns() {
		t.Set(c, Frequencies(records, c))
	}
	return t
}

// TotalsError 表示某张频数表的合计与记录数不一致（数据形状不匹配）。
type TotalsError struct {
	Column domain.Column
	Want   int
	Got    int
}

func (e *TotalsError) Error() string {
	return fmt.Sprintf("频数表 %s 合计 %d，与记录数 %d 不一致", e.Column, e.Got, e.Want)
}

// CheckTotals 校验每张表的频数之和等于记录数。
func CheckTotals(t domain.Tables, n int) error {
	for _, c := range domain.Columns() {
		if got := t.Get(c).Total(); got != n {
			return &TotalsError{Column: c, Want: n, Got: got}
		}
	}
	return nil
}
