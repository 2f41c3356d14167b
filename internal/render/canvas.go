package render

import (
	"fmt"
	"html"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Canvas 是绘制仪表盘所需的最小绘图接口（chart.Renderer 的子集）。
type Canvas interface {
	SetFillColor(drawing.Color)
	SetStrokeColor(drawing.Color)
	SetStrokeWidth(float64)

	MoveTo(x, y int)
	LineTo(x, y int)
	ArcTo(cx, cy int, rx, ry, startAngle, delta float64)
	Close()
	Fill()
	Stroke()
	FillStroke()

	SetFontSize(float64)
	SetFontColor(drawing.Color)
	Text(body string, x, y int)
	MeasureText(body string) chart.Box
	SetTextRotation(radians float64)
	ClearTextRotation()
}

// 输出格式。
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

const dpi = 96.0

// ContentType 返回格式对应的 MIME 类型。
func ContentType(format string) string {
	if format == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// surface 是真正落盘的画布：chart.Renderer 加上输出格式相关的修正。
type surface struct {
	chart.Renderer
	svg bool
}

// Text 在 SVG 下转义正文（go-chart 的 SVG 渲染器不转义 <、& 等字符）。
func (s surface) Text(body string, x, y int) {
	if s.svg {
		body = html.EscapeString(body)
	}
	s.Renderer.Text(body, x, y)
}

func newSurface(format string, w, h int) (surface, error) {
	var (
		r   chart.Renderer
		err error
	)
	switch format {
	case FormatPNG:
		r, err = chart.PNG(w, h)
	case FormatSVG:
		r, err = chart.SVG(w, h)
	default:
		return surface{}, fmt.Errorf("不支持的输出格式 %q", format)
	}
	if err != nil {
		return surface{}, err
	}
	font, err := chart.GetDefaultFont()
	if err != nil {
		return surface{}, err
	}
	r.SetDPI(dpi)
	r.SetFont(font)
	return surface{Renderer: r, svg: format == FormatSVG}, nil
}

func (s surface) save(w io.Writer) error { return s.Renderer.Save(w) }
