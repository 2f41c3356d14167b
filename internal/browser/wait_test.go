package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

func TestSelector_ResolveJS(t *testing.T) {
	css := CSS(`#nombre`).resolveJS()
	if css != `document.querySelector("#nombre")` {
		t.Fatalf("CSS 解析表达式不符合预期：%s", css)
	}
	xp := XPath(`//*[@id="x"]`).resolveJS()
	if !strings.Contains(xp, `document.evaluate("//*[@id=\"x\"]"`) {
		t.Fatalf("XPath 应转义引号：%s", xp)
	}
	if !CSS("").IsZero() || XPath("//a").IsZero() {
		t.Fatalf("IsZero 判断错误")
	}
	if XPath("//a").String() != "xpath://a" {
		t.Fatalf("String 不符合预期：%s", XPath("//a").String())
	}
}

func TestWrapStepError(t *testing.T) {
	parent := context.Background()

	err := wrapStepError(parent, ".card", "click", time.Second, fmt.Errorf("x: %w", context.DeadlineExceeded))
	var te *TimeoutError
	if !errors.As(err, &te) || te.Timeout != time.Second {
		t.Fatalf("期望 TimeoutError，实际 %v", err)
	}

	err = wrapStepError(parent, ".card", "click", time.Second, errors.New("boom"))
	var ee *ElementError
	if !errors.As(err, &ee) || ee.Op != "click" {
		t.Fatalf("期望 ElementError，实际 %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("普通错误不应判为 not found")
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err = wrapStepError(canceled, ".card", "click", time.Second, context.DeadlineExceeded)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("父 context 已取消时应返回其错误，实际 %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &ElementError{Selector: "#x", Op: "text", Err: ErrNotFound})
	if !IsNotFound(err) {
		t.Fatalf("期望 not found")
	}
}

func TestClassifyPollError(t *testing.T) {
	ctx := context.Background()

	err := classifyPollError(ctx, "文本变化 #nombre", 2*time.Second, chromedp.ErrPollingTimeout)
	var te *TimeoutError
	if !errors.As(err, &te) || te.Timeout != 2*time.Second {
		t.Fatalf("ErrPollingTimeout 应映射为 TimeoutError，实际 %v", err)
	}

	exc := &runtime.ExceptionDetails{Text: "Uncaught SyntaxError: '#[bad' is not a valid selector"}
	err = classifyPollError(ctx, "元素可交互 #[bad", 2*time.Second, exc)
	var ee *ElementError
	if !errors.As(err, &ee) || ee.Op != "evaluate" {
		t.Fatalf("脚本异常应立即返回 ElementError，实际 %v", err)
	}

	// 执行上下文被页面跳转销毁：可重试。
	if err := classifyPollError(ctx, "x", time.Second, errors.New("Execution context was destroyed. (-32000)")); err != nil {
		t.Fatalf("跳转导致的错误应可重试，实际 %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := classifyPollError(canceled, "x", time.Second, errors.New("boom")); !errors.Is(err, context.Canceled) {
		t.Fatalf("父 context 已取消时应返回其错误，实际 %v", err)
	}
}
