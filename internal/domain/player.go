package domain

// PlayerRecord 是一张球员卡片解析出的结构化记录（一张卡片一条，保持页面顺序）。
//
// 约束：
// - Rank 为卡片在页面中的 1-based 序号（榜单名次）
// - 解析阶段得到的是原始值；Age/Position 的规范化由 app 层完成
// - 记录一旦生成即不可变（下游只读）
type PlayerRecord struct {
	Rank        int    `json:"rank"`
	Name        string `json:"name"`
	Nationality string `json:"nationality"`
	Team        string `json:"team"`
	League      string `json:"league"`
	Age         string `json:"age"`
	Position    string `json:"position"`
}

// Card 是浏览器点击卡片后捕获的详情面板 HTML 片段。
// 片段可缓存，Parse 对同一片段必须给出相同结果。
type Card struct {
	Index int    `json:"index"` // 0-based
	HTML  string `json:"html"`
}

// 规范化后的位置代码。
const (
	PositionForward    = "FOR"
	PositionMidfielder = "MID"
	PositionDefender   = "DEF"
	PositionGoalkeeper = "GK"
)

// DefaultPositionCodes 是站点西语位置名到位置代码的映射。
func DefaultPositionCodes() map[string]string {
	return map[string]string{
		"ATACANTE":       PositionForward,
		"CENTROCAMPISTA": PositionMidfielder,
		"DEFENSA":        PositionDefender,
		"PORTERO":        PositionGoalkeeper,
	}
}

// Column 标识一列可做频数统计的字段。
type Column string

const (
	ColumnNationality Column = "nationality"
	ColumnTeam        Column = "team"
	ColumnLeague      Column = "league"
	ColumnPosition    Column = "position"
	ColumnAge         Column = "age"
)

// Columns 返回全部统计列（固定顺序）。
func Columns() []Column {
	return []Column{ColumnNationality, ColumnTeam, ColumnLeague, ColumnPosition, ColumnAge}
}

// Value 返回记录在某一列上的取值。
func (r PlayerRecord) Value(c Column) string {
	switch c {
	case ColumnNationality:
		return r.Nationality
	case ColumnTeam:
		return r.Team
	case ColumnLeague:
		return r.League
	case ColumnPosition:
		return r.Position
	case ColumnAge:
		return r.Age
	default:
		return ""
	}
}
