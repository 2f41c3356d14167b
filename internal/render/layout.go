package render

// Panel 标识仪表盘上的一个面板。
type Panel int

const (
	PanelNationality Panel = iota // 国籍地图
	PanelTeam
	PanelLeague
	PanelAge
	PanelPosition
)

// Title 是面板标题。
func (p Panel) Title() string {
	switch p {
	case PanelNationality:
		return "Nationality"
	case PanelTeam:
		return "Team"
	case PanelLeague:
		return "League"
	case PanelAge:
		return "Age"
	case PanelPosition:
		return "Position"
	default:
		return ""
	}
}

// Panels 返回全部面板（绘制顺序）。
func Panels() []Panel {
	return []Panel{PanelNationality, PanelTeam, PanelLeague, PanelAge, PanelPosition}
}

// Rect 是像素矩形（左上角 + 宽高）。
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Right() int  { return r.X + r.W }
func (r Rect) Bottom() int { return r.Y + r.H }

// Inset 向内收缩。
func (r Rect) Inset(left, top, right, bottom int) Rect {
	return Rect{X: r.X + left, Y: r.Y + top, W: max(r.W-left-right, 0), H: max(r.H-top-bottom, 0)}
}

// Contains 报告 o 是否完全落在 r 内。
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Overlaps 报告两个矩形是否相交（共享边不算）。
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

const (
	Width  = 1000
	Height = 1600

	headerH  = 70 // 总标题
	footerH  = 30 // 脚注
	marginX  = 20
	gridGap  = 20
	gridRows = 4
	gridCols = 2
)

// Layout 按 4x2 网格切分画布：
// 地图占第 0 行两列；球队占第 1-2 行第 0 列；联赛占第 1-2 行第 1 列；年龄在第 3 行第 0 列；位置在第 3 行第 1 列。
func Layout(w, h int) map[Panel]Rect {
	area := Rect{X: marginX, Y: headerH, W: w - 2*marginX, H: h - headerH - footerH}
	cellW := (area.W - (gridCols-1)*gridGap) / gridCols
	cellH := (area.H - (gridRows-1)*gridGap) / gridRows

	cell := func(row, col, rowspan, colspan int) Rect {
		return Rect{
			X: area.X + col*(cellW+gridGap),
			Y: area.Y + row*(cellH+gridGap),
			W: colspan*cellW + (colspan-1)*gridGap,
			H: rowspan*cellH + (rowspan-1)*gridGap,
		}
	}
	return map[Panel]Rect{
		PanelNationality: cell(0, 0, 1, 2),
		PanelTeam:        cell(1, 0, 2, 1),
		PanelLeague:      cell(1, 1, 2, 1),
		PanelAge:         cell(3, 0, 1, 1),
		PanelPosition:    cell(3, 1, 1, 1),
	}
}
