package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/marcatop/internal/app"
	"github.com/John-Robertt/marcatop/internal/browser"
	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/provider"
)

func TestClassifyProviderError(t *testing.T) {
	fetch := func(err error) error { return &provider.Error{Provider: "marca", Stage: provider.StageFetch, Err: err} }
	parse := func(err error) error { return &provider.Error{Provider: "marca", Stage: provider.StageParse, Err: err} }

	cases := map[string]struct {
		err  error
		want string
	}{
		"start":          {fetch(&browser.StartError{Err: errors.New("exec: chrome not found")}), domain.ErrCodePageLoadFailed},
		"navigation":     {fetch(&browser.NavigationError{URL: "https://x", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}), domain.ErrCodePageLoadFailed},
		"http 404":       {fetch(&provider.HTTPStatusError{URL: "https://x", StatusCode: 404}), domain.ErrCodePageLoadFailed},
		"wait timeout":   {fetch(&browser.TimeoutError{What: "元素可交互 #x", Timeout: time.Second}), domain.ErrCodeWaitTimeout},
		"element":        {fetch(&browser.ElementError{Selector: ".contenedorEscudo", Op: "query", Err: browser.ErrNotFound}), domain.ErrCodeElementNotFound},
		"script error":   {fetch(&browser.ElementError{Selector: "元素可交互 #[bad", Op: "evaluate", Err: errors.New("SyntaxError")}), domain.ErrCodeElementNotFound},
		"deadline":       {fetch(fmt.Errorf("run: %w", context.DeadlineExceeded)), domain.ErrCodeWaitTimeout},
		"canceled":       {fetch(context.Canceled), domain.ErrCodeCanceled},
		"missing field":  {parse(fmt.Errorf("第 3 张卡片：%w", &provider.MissingFieldError{Field: "position", Selector: "#demarcacion"})), domain.ErrCodeParseFailed},
		"parse other":    {parse(errors.New("没有任何卡片")), domain.ErrCodeParseFailed},
		"unknown fetch":  {fetch(errors.New("boom")), domain.ErrCodePageLoadFailed},
		"not a provider": {errors.New("boom"), domain.ErrCodePageLoadFailed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			code, msg := classifyProviderError(tc.err)
			if code != tc.want {
				t.Fatalf("期望 %q，实际 %q（msg=%s）", tc.want, code, msg)
			}
			if strings.TrimSpace(msg) == "" {
				t.Fatalf("error_msg 不应为空")
			}
		})
	}
}

func TestClassifyProviderError_RateLimitHint(t *testing.T) {
	_, msg := classifyProviderError(&provider.Error{Provider: "marca", Stage: provider.StageFetch, Err: &provider.HTTPStatusError{URL: "https://x", StatusCode: 429}})
	if !strings.Contains(msg, "proxy.url") {
		t.Fatalf("429 应提示配置代理：%s", msg)
	}
}

func TestClassifyProviderError_NotFoundNamesSelector(t *testing.T) {
	_, msg := classifyProviderError(&provider.Error{Provider: "marca", Stage: provider.StageFetch,
		Err: &browser.ElementError{Selector: ".contenedorEscudo", Op: "query", Err: browser.ErrNotFound}})
	if !strings.Contains(msg, "找不到 .contenedorEscudo") {
		t.Fatalf("not found 应指出缺失的选择器：%s", msg)
	}

	_, msg = classifyProviderError(&provider.Error{Provider: "marca", Stage: provider.StageFetch,
		Err: &browser.ElementError{Selector: "#x", Op: "evaluate", Err: errors.New("SyntaxError")}})
	if !strings.Contains(msg, "选择器无效") {
		t.Fatalf("脚本异常应提示选择器无效：%s", msg)
	}
}

func TestRedactDSN(t *testing.T) {
	if got := redactDSN("postgres", "postgres://u:secret@db:5432/x?sslmode=disable"); strings.Contains(got, "secret") {
		t.Fatalf("密码未隐藏：%s", got)
	}
	if got := redactDSN("postgres", "host=db user=u password=secret"); strings.Contains(got, "secret") {
		t.Fatalf("密码未隐藏：%s", got)
	}
	if got := redactDSN("sqlite", "/tmp/x.db"); got != "/tmp/x.db" {
		t.Fatalf("sqlite DSN 应原样返回：%s", got)
	}
}

func TestAggregate_TotalsHold(t *testing.T) {
	recs := sampleRecords()
	norm, tables, err := Aggregate(recs, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := app.CheckTotals(tables, len(norm.Records)); err != nil {
		t.Fatalf("合计不一致：%v", err)
	}
	if recs[0].Position != "ATACANTE" {
		t.Fatalf("Aggregate 不应修改输入切片")
	}
}
