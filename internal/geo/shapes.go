// Package geo 读取国家边界 shapefile，并把国籍频数表按国家名连接上去。
package geo

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"golang.org/x/text/encoding/htmlindex"
)

// Point 是经纬度坐标（X=经度，Y=纬度）。
type Point struct {
	X, Y float64
}

// Shape 是一个国家的多边形。
type Shape struct {
	Name  string    // 解码后的原始名称
	Key   string    // 连接键：小写、去首尾空白
	Rings [][]Point // 每个 part 一个环
}

// Box 是包围盒。
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Options 描述如何读取 shapefile。
type Options struct {
	Path      string // .shp 绝对路径
	NameField string
	Encoding  string // DBF 文本编码；空表示按 UTF-8 原样读取
	Exclude   []string
}

// Error 表示 shapefile 缺失、损坏，或结构不符合预期。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("读取地图数据失败 %q：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Key 返回国家名的连接键。
func Key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Load 读取全部多边形，跳过 Exclude 中列出的国家（按名称，大小写不敏感）。
// 结果保持文件中的顺序。
func Load(opts Options) ([]Shape, error) {
	fail := func(err error) ([]Shape, error) { return nil, &Error{Path: opts.Path, Err: err} }

	if !strings.HasSuffix(strings.ToLower(opts.Path), ".shp") {
		return fail(errors.New("路径必须以 .shp 结尾"))
	}
	dec, err := newDecoder(opts.Encoding)
	if err != nil {
		return fail(err)
	}

	r, err := shp.Open(opts.Path)
	if err != nil {
		return fail(err)
	}
	// go-shp 读到 EOF 后 Close 会返回 io.EOF，这里不关心。
	defer func() { _ = r.Close() }()

	field := -1
	for i, f := range r.Fields() {
		raw := f.String()
		if raw == opts.NameField || dec(raw) == opts.NameField {
			field = i
			break
		}
	}
	if field < 0 {
		return fail(fmt.Errorf("缺少名称字段 %q", opts.NameField))
	}

	skip := make(map[string]bool, len(opts.Exclude))
	for _, n := range opts.Exclude {
		skip[Key(n)] = true
	}

	var out []Shape
	for r.Next() {
		row, s := r.Shape()
		rings, ok := polygonRings(s)
		if !ok {
			continue
		}
		name := dec(strings.TrimRight(r.ReadAttribute(row, field), "\x00 "))
		key := Key(name)
		if key == "" || skip[key] {
			continue
		}
		out = append(out, Shape{Name: strings.TrimSpace(name), Key: key, Rings: rings})
	}
	if err := r.Err(); err != nil {
		return fail(err)
	}
	if len(out) == 0 {
		return fail(errors.New("没有任何多边形"))
	}
	return out, nil
}

func polygonRings(s shp.Shape) ([][]Point, bool) {
	var (
		parts  []int32
		points []shp.Point
	)
	switch p := s.(type) {
	case *shp.Polygon:
		parts, points = p.Parts, p.Points
	case *shp.PolygonZ:
		parts, points = p.Parts, p.Points
	case *shp.PolygonM:
		parts, points = p.Parts, p.Points
	default:
		return nil, false
	}
	rings := make([][]Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		ring := make([]Point, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, Point{X: pt.X, Y: pt.Y})
		}
		rings = append(rings, ring)
	}
	return rings, len(rings) > 0
}

// newDecoder 返回把 DBF 原始字节转为 UTF-8 的函数；已经是合法 UTF-8 的值原样返回。
func newDecoder(encoding string) (func(string) string, error) {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" || strings.EqualFold(encoding, "utf-8") || strings.EqualFold(encoding, "utf8") {
		return func(s string) string { return s }, nil
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("未知编码 %q：%w", encoding, err)
	}
	return func(s string) string {
		if utf8.ValidString(s) {
			return s
		}
		out, err := enc.NewDecoder().String(s)
		if err != nil {
			return s
		}
		return out
	}, nil
}

// Bounds 返回全部多边形的包围盒。
func Bounds(shapes []Shape) Box {
	first := true
	var b Box
	for _, s := range shapes {
		for _, ring := range s.Rings {
			for _, p := range ring {
				if first {
					b = Box{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y}
					first = false
					continue
				}
				b.MinX = min(b.MinX, p.X)
				b.MinY = min(b.MinY, p.Y)
				b.MaxX = max(b.MaxX, p.X)
				b.MaxY = max(b.MaxY, p.Y)
			}
		}
	}
	return b
}
