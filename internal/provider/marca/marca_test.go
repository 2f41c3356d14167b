package marca

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/John-Robertt/marcatop/internal/domain"
	providerx "github.com/John-Robertt/marcatop/internal/provider"
)

func TestParse_Golden(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	if err != nil {
		t.Fatalf("读取 testdata 失败：%v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "card_") || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		t.Fatalf("未找到任何 fixture（testdata/card_*.html）")
	}

	update := os.Getenv("UPDATE_GOLDEN") == "1"
	if update {
		if err := os.MkdirAll("golden", 0o755); err != nil {
			t.Fatalf("创建 golden 目录失败：%v", err)
		}
	}

	for _, name := range names {
		base := strings.TrimSuffix(name, ".html")
		idx, err := strconv.Atoi(strings.TrimPrefix(base, "card_"))
		if err != nil {
			t.Fatalf("fixture 文件名应为 card_<index>.html：%s", name)
		}
		html, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("读取 fixture 失败：%v", err)
		}

		rec, err := Provider{}.Parse(domain.Card{Index: idx, HTML: string(html)})
		if err != nil {
			t.Fatalf("Parse 失败：fixture=%s err=%v", name, err)
		}
		got, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			t.Fatalf("json.Marshal 失败：%v", err)
		}
		got = append(got, '\n')

		goldenPath := filepath.Join("golden", base+".json")
		if update {
			if err := os.WriteFile(goldenPath, got, 0o644); err != nil {
				t.Fatalf("写入 golden 失败：%v", err)
			}
			continue
		}

		want, err := os.ReadFile(goldenPath)
		if err != nil {
			t.Fatalf("读取 golden 失败：%s err=%v（可用 UPDATE_GOLDEN=1 生成）", goldenPath, err)
		}
		if string(want) != string(got) {
			diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(string(want)),
				B:        difflib.SplitLines(string(got)),
				FromFile: goldenPath,
				ToFile:   "got",
				Context:  2,
			})
			t.Fatalf("golden 不匹配（重新生成：UPDATE_GOLDEN=1 go test ./internal/provider/marca）：\n%s", diff)
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("testdata", "card_000.html"))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	card := domain.Card{Index: 0, HTML: string(html)}
	a, errA := Provider{}.Parse(card)
	b, errB := Provider{}.Parse(card)
	if errA != nil || errB != nil || a != b {
		t.Fatalf("Parse 应为纯函数：%+v / %+v", a, b)
	}
}

func TestParse_MissingField(t *testing.T) {
	html := `<div id="nombre">X</div><div id="pais">España</div><div id="equipo">T</div><div id="liga">L</div><div id="edad">20</div>`

	_, err := Provider{}.Parse(domain.Card{HTML: html})
	var mf *providerx.MissingFieldError
	if !errors.As(err, &mf) || mf.Field != "position" {
		t.Fatalf("期望缺少 position，实际 %v", err)
	}
}

func TestParse_EmptyName(t *testing.T) {
	html := `<div id="nombre">  </div><div id="pais">España</div><div id="equipo">T</div><div id="liga">L</div><div id="edad">20</div><div id="demarcacion">DEFENSA</div>`

	_, err := Provider{}.Parse(domain.Card{HTML: html})
	var mf *providerx.MissingFieldError
	if !errors.As(err, &mf) || mf.Field != "name" {
		t.Fatalf("空名字应视为缺失，实际 %v", err)
	}
}

func TestCaptureScript_ContainsAllSelectors(t *testing.T) {
	js := captureScript(DefaultSelectors().Fields)
	for _, s := range []string{"#nombre", "#pais", "#equipo", "#liga", "#edad", "#demarcacion"} {
		if !strings.Contains(js, `"`+s+`"`) {
			t.Fatalf("capture 脚本缺少 %s：%s", s, js)
		}
	}
}
