package provider

import "fmt"

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
// provider.Fetch 可以返回该错误，让上层生成更可操作的 error_msg。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d：%s", e.StatusCode, e.URL)
}

// MissingFieldError 表示卡片片段缺少某个必需元素（通常意味着站点改版）。
type MissingFieldError struct {
	Field    string
	Selector string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("缺少字段 %s（选择器 %s）", e.Field, e.Selector)
}
