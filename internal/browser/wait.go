package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	pollInterval           = 100 * time.Millisecond
	defaultSnapshotTimeout = 10 * time.Second
)

// ErrNotFound 表示选择器没有匹配到任何元素。
var ErrNotFound = errors.New("元素不存在")

// Selector 是 CSS 或 XPath 选择器。
type Selector struct {
	Expr  string
	XPath bool
}

// CSS 构造 CSS 选择器。
func CSS(expr string) Selector { return Selector{Expr: expr} }

// XPath 构造 XPath 选择器。
func XPath(expr string) Selector { return Selector{Expr: expr, XPath: true} }

// IsZero 报告选择器是否为空（空选择器表示跳过对应步骤）。
func (s Selector) IsZero() bool { return s.Expr == "" }

func (s Selector) String() string {
	if s.XPath {
		return "xpath:" + s.Expr
	}
	return s.Expr
}

func (s Selector) queryAll() chromedp.QueryOption {
	if s.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// resolveJS 返回一段求值为第一个匹配元素（或 null）的 JS 表达式。
func (s Selector) resolveJS() string {
	lit, _ := json.Marshal(s.Expr)
	if s.XPath {
		return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, lit)
	}
	return fmt.Sprintf(`document.querySelector(%s)`, lit)
}

// TimeoutError 表示某个条件在上限内始终不满足。
type TimeoutError struct {
	What    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("等待超时（%s）：%s", e.Timeout, e.What)
}

// ElementError 表示选择器找不到元素，或对元素的操作失败。
type ElementError struct {
	Selector string
	Op       string
	Err      error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("元素操作失败 %s %s：%v", e.Op, e.Selector, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }

// IsNotFound 报告 err 是否表示元素不存在（或始终未出现）。
func IsNotFound(err error) bool {
	var ee *ElementError
	return errors.As(err, &ee) && errors.Is(ee.Err, ErrNotFound)
}

// WaitCondition 在页面内轮询 JS 布尔表达式（chromedp.Poll），直到为真或超时。
//
// 约束：
// - 超时返回 *TimeoutError；父 context 取消时返回其错误
// - 表达式抛出异常（例如选择器语法错误）立即返回 *ElementError，不再等待
// - 页面跳转销毁执行上下文时，在剩余时间内重新开始轮询
func WaitCondition(what, jsExpr string, timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(timeout)
		for {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return &TimeoutError{What: what, Timeout: timeout}
			}
			var ok bool
			err := chromedp.Poll(jsExpr, &ok,
				chromedp.WithPollingInterval(pollInterval),
				chromedp.WithPollingTimeout(remaining),
			).Do(ctx)
			if err == nil {
				return nil
			}
			if err := classifyPollError(ctx, what, timeout, err); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	})
}

// classifyPollError 把 Poll 的错误映射为本包的错误类型；返回 nil 表示可以重试。
func classifyPollError(ctx context.Context, what string, timeout time.Duration, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return &TimeoutError{What: what, Timeout: timeout}
	}
	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) {
		return &ElementError{Selector: what, Op: "evaluate", Err: err}
	}
	return nil
}

// WaitInteractable 等待 sel 的第一个匹配元素存在、可见且未禁用。
func WaitInteractable(sel Selector, timeout time.Duration) chromedp.Action {
	js := fmt.Sprintf(`(function(){
  const el = %s;
  if (!el) return false;
  const r = el.getBoundingClientRect();
  const st = window.getComputedStyle(el);
  return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none' && !el.disabled;
})()`, sel.resolveJS())
	return WaitCondition("元素可交互 "+sel.String(), js, timeout)
}

// ClickWhenReady 等待元素可交互后点击。
func ClickWhenReady(sel Selector, timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := WaitInteractable(sel, timeout).Do(ctx); err != nil {
			return err
		}
		js := fmt.Sprintf(`(function(){const el=%s; if(!el) return false; el.click(); return true;})()`, sel.resolveJS())
		var ok bool
		if err := chromedp.Evaluate(js, &ok).Do(ctx); err != nil {
			return &ElementError{Selector: sel.String(), Op: "click", Err: err}
		}
		if !ok {
			return &ElementError{Selector: sel.String(), Op: "click", Err: ErrNotFound}
		}
		return nil
	})
}

// WaitTextChange 等待 sel 的文本变为非空且不同于 prev。
func WaitTextChange(sel Selector, prev string, timeout time.Duration) chromedp.Action {
	lit, _ := json.Marshal(prev)
	js := fmt.Sprintf(`(function(){
  const el = %s;
  if (!el) return false;
  const t = (el.textContent || '').trim();
  return t !== '' && t !== %s;
})()`, sel.resolveJS(), lit)
	return WaitCondition("文本变化 "+sel.String(), js, timeout)
}

// wrapStepError 把单步 context 超时转换为 *TimeoutError；父 context 已取消则原样返回。
func wrapStepError(parent context.Context, what, op string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{What: op + " " + what, Timeout: timeout}
	}
	return &ElementError{Selector: what, Op: op, Err: err}
}
