package domain

// Count 是频数表中的一行。
type Count struct {
	Value string `json:"value"`
	N     int    `json:"n"`
}

// FreqTable 是某一列的频数表（有序）。
// 不变量：所有 N 之和等于参与统计的记录数。
type FreqTable []Count

// Total 返回频数之和。
func (t FreqTable) Total() int {
	n := 0
	for _, c := range t {
		n += c.N
	}
	return n
}

// Tables 汇总五张频数表。
type Tables struct {
	Nationality FreqTable `json:"nationality"`
	Team        FreqTable `json:"team"`
	League      FreqTable `json:"league"`
	Position    FreqTable `json:"position"`
	Age         FreqTable `json:"age"`
}

// Get 按列取表。
func (t Tables) Get(c Column) FreqTable {
	switch c {
	case ColumnNationality:
		return t.Nationality
	case ColumnTeam:
		return t.Team
	case ColumnLeague:
		return t.League
	case ColumnPosition:
		return t.Position
	case ColumnAge:
		return t.Age
	default:
		return nil
	}
}

// Set 按列写表。
func (t *Tables) Set(c Column, ft FreqTable) {
	switch c {
	case ColumnNationality:
		t.Nationality = ft
	case ColumnTeam:
		t.Team = ft
	case ColumnLeague:
		t.League = ft
	case ColumnPosition:
		t.Position = ft
	case ColumnAge:
		t.Age = ft
	}
}
