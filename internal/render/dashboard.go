// Package render 把频数表与国家多边形绘制为一张五面板仪表盘（PNG 或 SVG）。
package render

import (
	"bytes"
	"io"

	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/geo"
)

// Data 是绘制仪表盘所需的全部输入。
type Data struct {
	Title    string
	Footnote string
	Tables   domain.Tables
	Shapes   []geo.JoinedShape
}

// Render 以 format 绘制仪表盘并写入 w。
func Render(w io.Writer, format string, d Data) error {
	s, err := newSurface(format, Width, Height)
	if err != nil {
		return err
	}
	Draw(s, Width, Height, d)
	return s.save(w)
}

// Bytes 是 Render 的便捷形式。
func Bytes(format string, d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, format, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Draw 在 c 上绘制完整仪表盘。
func Draw(c Canvas, w, h int, d Data) {
	fillRect(c, Rect{W: w, H: h}, colorBackground)

	c.SetFontColor(colorInk)
	c.SetFontSize(suptitleSize)
	textCentered(c, d.Title, w/2, headerH-25)

	layout := Layout(w, h)
	for _, p := range Panels() {
		area := drawTitle(c, p, layout[p])
		st := panelStyles[p]
		switch p {
		case PanelNationality:
			drawMap(c, area, d.Shapes)
		case PanelTeam, PanelLeague:
			drawHBars(c, area, d.Tables.Get(columnOf(p)), st)
		case PanelAge:
			drawVBars(c, area, d.Tables.Age)
		case PanelPosition:
			drawPie(c, area, d.Tables.Position)
		}
	}

	c.SetFontColor(colorInk)
	c.SetFontSize(footnoteSize)
	c.Text(d.Footnote, int(0.9*float64(w)), h-8)
}

func columnOf(p Panel) domain.Column {
	switch p {
	case PanelNationality:
		return domain.ColumnNationality
	case PanelTeam:
		return domain.ColumnTeam
	case PanelLeague:
		return domain.ColumnLeague
	case PanelAge:
		return domain.ColumnAge
	default:
		return domain.ColumnPosition
	}
}
