package run

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/John-Robertt/marcatop/internal/browser"
	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/provider"
)

// classifyProviderError 把抓取/解析错误归类为 error_code，并生成可操作的 error_msg。
// 具体错误类型优先于阶段判断（fetch 阶段内部也可能是超时/找不到元素）。
func classifyProviderError(err error) (code, msg string) {
	name, inner := "provider", err
	var pe *provider.Error
	if errors.As(err, &pe) {
		name, inner = pe.Provider, pe.Err
	}

	var (
		hs *provider.HTTPStatusError
		ne *browser.NavigationError
		se *browser.StartError
		te *browser.TimeoutError
		ee *browser.ElementError
		mf *provider.MissingFieldError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return domain.ErrCodeCanceled, "运行被取消"
	case errors.As(err, &se):
		if se.Remote != "" {
			return domain.ErrCodePageLoadFailed, fmt.Sprintf("无法连接浏览器 %s：%v。请确认 Chrome 已以 --remote-debugging-port 启动。", se.Remote, se.Err)
		}
		return domain.ErrCodePageLoadFailed, fmt.Sprintf("无法启动浏览器：%v。可在配置中设置 browser.exec_path，或用 --chrome-url 连接已有 Chrome。", se.Err)
	case errors.As(err, &hs):
		switch hs.StatusCode {
		case 403, 429:
			return domain.ErrCodePageLoadFailed, fmt.Sprintf("%s 返回 HTTP %d（可能触发反爬/限流）。建议配置 proxy.url 或稍后重试。", name, hs.StatusCode)
		default:
			return domain.ErrCodePageLoadFailed, fmt.Sprintf("%s 返回 HTTP %d：%s", name, hs.StatusCode, hs.URL)
		}
	case errors.As(err, &ne):
		return domain.ErrCodePageLoadFailed, fmt.Sprintf("%s 页面加载失败：%v。建议检查网络或配置 proxy.url。", name, ne)
	case errors.As(err, &te):
		return domain.ErrCodeWaitTimeout, fmt.Sprintf("%s %v。站点可能改版或网络较慢，可调大 browser.wait_timeout_sec。", name, te)
	case errors.As(err, &ee):
		if browser.IsNotFound(err) {
			return domain.ErrCodeElementNotFound, fmt.Sprintf("%s 页面上找不到 %s（站点结构可能变化）", name, ee.Selector)
		}
		return domain.ErrCodeElementNotFound, fmt.Sprintf("%s %v（选择器无效或站点结构变化）", name, ee)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrCodeWaitTimeout, fmt.Sprintf("%s 抓取超过总时限，可调大 browser.timeout_sec。", name)
	case errors.As(err, &mf):
		return domain.ErrCodeParseFailed, fmt.Sprintf("%s 解析失败（站点结构可能变化）：%v", name, inner)
	}

	if pe != nil && pe.Stage == provider.StageParse {
		return domain.ErrCodeParseFailed, fmt.Sprintf("%s 解析失败：%v", name, inner)
	}
	return domain.ErrCodePageLoadFailed, fmt.Sprintf("%s 抓取失败：%v", name, inner)
}

// redactDSN 隐藏连接串中的密码（sqlite 路径原样返回）。
func redactDSN(driver, dsn string) string {
	if driver != "postgres" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		// key=value 形式：整段隐藏 password=...
		parts := strings.Fields(dsn)
		for i, p := range parts {
			if strings.HasPrefix(p, "password=") {
				parts[i] = "password=xxxxx"
			}
		}
		return strings.Join(parts, " ")
	}
	return u.Redacted()
}
