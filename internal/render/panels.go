package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/geo"
)

const (
	titleBand   = 26
	tickBand    = 18 // x 轴刻度文字
	yTickBand   = 30 // 纵向柱状图的 y 轴刻度文字
	colorBarW   = 14
	colorBarGap = 50
	labelPad    = 6
)

// drawTitle 画面板标题，返回标题下方的区域。
func drawTitle(c Canvas, p Panel, r Rect) Rect {
	c.SetFontColor(colorInk)
	c.SetFontSize(titleSize)
	boldText(c, p.Title(), r.X+r.W/2-c.MeasureText(p.Title()).Width()/2, r.Y+titleBand-8)
	return r.Inset(0, titleBand, 0, 0)
}

// drawHBars 画横向柱状图（表中顺序自上而下）。
func drawHBars(c Canvas, area Rect, t domain.FreqTable, st panelStyle) {
	size := st.labelSize
	if size == 0 {
		size = defaultLabelSize
	}
	c.SetFontSize(size)
	c.SetFontColor(colorInk)

	labels := make([][]string, len(t))
	labelW := 0
	for i, row := range t {
		lines := []string{row.Value}
		if st.wrapWidth > 0 {
			lines = strings.Split(wordwrap.WrapString(row.Value, st.wrapWidth), "\n")
		}
		labels[i] = lines
		for _, l := range lines {
			labelW = max(labelW, c.MeasureText(l).Width())
		}
	}
	labelW = min(labelW+labelPad, area.W*45/100)

	plot := area.Inset(labelW, 0, 0, tickBand)
	fillRect(c, plot, colorFace)
	if len(t) == 0 || plot.H == 0 {
		return
	}

	axisMax, step := niceScale(maxCount(t))
	drawXTicks(c, plot, axisMax, step)

	slot := float64(plot.H) / float64(len(t))
	lineH := int(drawing.PointsToPixels(dpi, size) * 1.1)
	for i, row := range t {
		top := plot.Y + int(float64(i)*slot+slot*0.1)
		bottom := plot.Y + int(float64(i+1)*slot-slot*0.1)
		bw := int(float64(row.N) / float64(axisMax) * float64(plot.W))
		fillRect(c, Rect{X: plot.X, Y: top, W: bw, H: max(bottom-top, 1)}, colorBar)

		c.SetFontColor(colorInk)
		c.SetFontSize(size)
		mid := (top + bottom) / 2
		lines := labels[i]
		first := mid - (len(lines)*lineH)/2 + lineH*3/4
		for k, l := range lines {
			textRight(c, l, plot.X-labelPad/2, first+k*lineH)
		}
	}
}

func drawXTicks(c Canvas, plot Rect, axisMax, step int) {
	c.SetFontSize(defaultLabelSize - 1)
	for v := 0; v <= axisMax; v += step {
		x := plot.X + int(float64(v)/float64(axisMax)*float64(plot.W))
		line(c, x, plot.Y, x, plot.Bottom(), colorGrid, 1)
		c.SetFontColor(colorInk)
		textCentered(c, strconv.Itoa(v), x, plot.Bottom()+tickBand-4)
	}
}

// drawVBars 画纵向柱状图（表中顺序自左向右）。
func drawVBars(c Canvas, area Rect, t domain.FreqTable) {
	plot := area.Inset(yTickBand, 0, 0, tickBand)
	fillRect(c, plot, colorFace)
	if len(t) == 0 || plot.W == 0 {
		return
	}

	axisMax, step := niceScale(maxCount(t))
	c.SetFontSize(defaultLabelSize - 1)
	for v := 0; v <= axisMax; v += step {
		y := plot.Bottom() - int(float64(v)/float64(axisMax)*float64(plot.H))
		line(c, plot.X, y, plot.Right(), y, colorGrid, 1)
		c.SetFontColor(colorInk)
		textRight(c, strconv.Itoa(v), plot.X-4, y+4)
	}

	slot := float64(plot.W) / float64(len(t))
	for i, row := range t {
		left := plot.X + int(float64(i)*slot+slot*0.1)
		right := plot.X + int(float64(i+1)*slot-slot*0.1)
		bh := int(float64(row.N) / float64(axisMax) * float64(plot.H))
		fillRect(c, Rect{X: left, Y: plot.Bottom() - bh, W: max(right-left, 1), H: bh}, colorBar)

		c.SetFontColor(colorInk)
		c.SetFontSize(defaultLabelSize - 1)
		textCentered(c, row.Value, (left+right)/2, plot.Bottom()+tickBand-4)
	}
}

// drawPie 画饼图：扇区外侧是取值，内侧是百分比（%.0f%%）。
func drawPie(c Canvas, area Rect, t domain.FreqTable) {
	total := t.Total()
	if total == 0 {
		return
	}
	cx, cy := area.X+area.W/2, area.Y+area.H/2
	radius := float64(min(area.W, area.H)) / 2 * 0.75
	colors := SliceColors(len(t))

	start := 0.0
	for i, row := range t {
		delta := 2 * math.Pi * float64(row.N) / float64(total)
		c.SetFillColor(colors[i])
		c.SetStrokeColor(colors[i])
		c.SetStrokeWidth(0)
		c.MoveTo(cx, cy)
		arc(c, cx, cy, radius, start, delta)
		c.LineTo(cx, cy)
		c.Close()
		c.Fill()
		start += delta
	}

	start = 0
	for _, row := range t {
		frac := float64(row.N) / float64(total)
		mid := start + math.Pi*frac
		start += 2 * math.Pi * frac

		c.SetFontSize(defaultLabelSize)
		c.SetFontColor(colorInk)
		lx, ly := polar(cx, cy, radius*1.15, mid)
		textCentered(c, row.Value, lx, ly+4)

		c.SetFontColor(colorBackground)
		pct := fmt.Sprintf("%.0f%%", frac*100)
		px, py := polar(cx, cy, radius*0.6, mid)
		boldText(c, pct, px-c.MeasureText(pct).Width()/2, py+4)
	}
}

// arc 以不超过 π 的分段画弧（整圆也能正确输出到 SVG）。
func arc(c Canvas, cx, cy int, r, start, delta float64) {
	for delta > 0 {
		d := math.Min(delta, math.Pi)
		c.ArcTo(cx, cy, r, r, start, d)
		start += d
		delta -= d
	}
}

func polar(cx, cy int, r, theta float64) (int, int) {
	return cx + int(math.Round(r*math.Cos(theta))), cy + int(math.Round(r*math.Sin(theta)))
}

// drawMap 以等距圆柱投影画分级设色地图，右侧是色条。
func drawMap(c Canvas, area Rect, shapes []geo.JoinedShape) {
	if len(shapes) == 0 {
		return
	}
	plot := area.Inset(0, 0, colorBarW+colorBarGap, 0)

	base := make([]geo.Shape, len(shapes))
	for i, s := range shapes {
		base[i] = s.Shape
	}
	b := geo.Bounds(base)
	bw, bh := b.MaxX-b.MinX, b.MaxY-b.MinY
	if bw <= 0 || bh <= 0 {
		return
	}
	scale := math.Min(float64(plot.W)/bw, float64(plot.H)/bh)
	ox := float64(plot.X) + (float64(plot.W)-bw*scale)/2
	oy := float64(plot.Y) + (float64(plot.H)-bh*scale)/2
	project := func(p geo.Point) (int, int) {
		return int(math.Round(ox + (p.X-b.MinX)*scale)), int(math.Round(oy + (b.MaxY-p.Y)*scale))
	}

	lo, hi := geo.CountRange(shapes)
	for _, s := range shapes {
		c.SetStrokeColor(colorBoundary)
		c.SetStrokeWidth(boundaryWidth)
		for _, ring := range s.Rings {
			if len(ring) < 2 {
				continue
			}
			x, y := project(ring[0])
			c.MoveTo(x, y)
			for _, p := range ring[1:] {
				x, y := project(p)
				c.LineTo(x, y)
			}
			c.Close()
		}
		if s.Count != nil {
			c.SetFillColor(Ramp(normalize(*s.Count, lo, hi)))
			c.FillStroke()
		} else {
			c.Stroke()
		}
	}

	if hi > 0 {
		drawColorBar(c, Rect{X: area.Right() - colorBarW - colorBarGap + 10, Y: area.Y + area.H/5, W: colorBarW, H: area.H * 3 / 5}, lo, hi)
	}
}

func drawColorBar(c Canvas, r Rect, lo, hi int) {
	const steps = 50
	for i := 0; i < steps; i++ {
		y0 := r.Bottom() - (i+1)*r.H/steps
		y1 := r.Bottom() - i*r.H/steps
		fillRect(c, Rect{X: r.X, Y: y0, W: r.W, H: y1 - y0}, Ramp(float64(i)/float64(steps-1)))
	}
	c.SetFontSize(defaultLabelSize - 1)
	c.SetFontColor(colorInk)
	span := hi - lo
	_, step := niceScale(max(span, 1))
	for v := lo; v <= hi; v += step {
		y := r.Bottom()
		if span > 0 {
			y = r.Bottom() - int(float64(v-lo)/float64(span)*float64(r.H))
		}
		line(c, r.Right(), y, r.Right()+3, y, colorInk, 1)
		c.Text(strconv.Itoa(v), r.Right()+6, y+4)
	}
}

// normalize 把 n 线性映射到 [0,1]；lo==hi 时取 1。
func normalize(n, lo, hi int) float64 {
	if hi <= lo {
		return 1
	}
	return float64(n-lo) / float64(hi-lo)
}

func maxCount(t domain.FreqTable) int {
	m := 0
	for _, r := range t {
		m = max(m, r.N)
	}
	return m
}

// niceScale 返回覆盖 m 的坐标轴上限与整数刻度步长（步长取 1/2/5×10^k，刻度不超过 6 个）。
func niceScale(m int) (axisMax, step int) {
	if m <= 0 {
		return 1, 1
	}
	step = 1
	for {
		for _, k := range []int{1, 2, 5} {
			s := step * k
			if (m+s-1)/s <= 6 {
				return ((m + s - 1) / s) * s, s
			}
		}
		step *= 10
	}
}

func fillRect(c Canvas, r Rect, col drawing.Color) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	c.SetFillColor(col)
	c.SetStrokeWidth(0)
	c.MoveTo(r.X, r.Y)
	c.LineTo(r.Right(), r.Y)
	c.LineTo(r.Right(), r.Bottom())
	c.LineTo(r.X, r.Bottom())
	c.Close()
	c.Fill()
}

func line(c Canvas, x0, y0, x1, y1 int, col drawing.Color, width float64) {
	c.SetStrokeColor(col)
	c.SetStrokeWidth(width)
	c.MoveTo(x0, y0)
	c.LineTo(x1, y1)
	c.Stroke()
}

func textCentered(c Canvas, s string, cx, baseline int) {
	c.Text(s, cx-c.MeasureText(s).Width()/2, baseline)
}

func textRight(c Canvas, s string, right, baseline int) {
	c.Text(s, right-c.MeasureText(s).Width(), baseline)
}

// boldText 用 1px 偏移叠印模拟粗体（内置字体没有粗体字重）。
func boldText(c Canvas, s string, x, baseline int) {
	c.Text(s, x, baseline)
	c.Text(s, x+1, baseline)
}
