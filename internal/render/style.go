package render

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	colorBackground = drawing.ColorFromHex("eeeeee")
	colorInk        = drawing.ColorFromHex("141E61") // 标题、刻度、饼图标签
	colorFace       = drawing.ColorFromHex("787A91") // 坐标区底色
	colorBar        = drawing.ColorFromHex("0F044C")
	colorBoundary   = drawing.ColorBlack
	colorGrid       = drawing.ColorFromHex("eeeeee").WithAlpha(90)
)

// 饼图扇区的两端颜色。
const (
	sliceFrom = "#787A91"
	sliceTo   = "#0F044C"
)

// winter 色带的两端（蓝 -> 青绿）。
var (
	rampLow  = colorful.Color{R: 0, G: 0, B: 1}
	rampHigh = colorful.Color{R: 0, G: 1, B: 0.5}
)

// Ramp 把 t∈[0,1] 映射到 winter 色带（越界会被截断）。
func Ramp(t float64) drawing.Color {
	t = min(max(t, 0), 1)
	return toDrawing(rampLow.BlendRgb(rampHigh, t))
}

// SliceColors 返回 n 个从 sliceFrom 到 sliceTo 线性混合的颜色（n=1 时只有起点色）。
func SliceColors(n int) []drawing.Color {
	if n <= 0 {
		return nil
	}
	from, _ := colorful.Hex(sliceFrom)
	to, _ := colorful.Hex(sliceTo)
	out := make([]drawing.Color, n)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		out[i] = toDrawing(from.BlendRgb(to, t))
	}
	return out
}

func toDrawing(c colorful.Color) drawing.Color {
	r, g, b := c.Clamped().RGB255()
	return drawing.Color{R: r, G: g, B: b, A: 255}
}

// panelStyle 是按面板区分的样式差异；公共部分（标题色、底色、刻度色、柱色）对所有面板相同。
// 地图面板不画底色与刻度。
type panelStyle struct {
	labelSize float64 // y 轴标签字号；0 表示默认
	wrapWidth uint    // y 轴标签按该宽度折行；0 表示不折行
}

var panelStyles = map[Panel]panelStyle{
	PanelNationality: {},
	PanelTeam:        {labelSize: 8},
	PanelLeague:      {labelSize: 7, wrapWidth: 8},
	PanelAge:         {},
	PanelPosition:    {},
}

const (
	defaultLabelSize = 9
	titleSize        = 12
	suptitleSize     = 20
	footnoteSize     = 7
	boundaryWidth    = 0.4
)
