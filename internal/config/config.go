package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"

	"github.com/John-Robertt/marcatop/internal/domain"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 marcatop.json5。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = "config_missing_path"
)

const (
	// FileName 是配置文件名；同目录下的 marcatop.local.json5 会覆盖其中的字段。
	FileName = "marcatop.json5"

	DefaultURL           = "https://www.marca.com/futbol/top-100.html"
	DefaultTimeout       = 3 * time.Minute
	DefaultWaitTimeout   = 15 * time.Second
	DefaultShapesPath    = "Paises_Mundo/Paises_Mundo.shp"
	DefaultShapesField   = "PAÍS"
	DefaultShapeEncoding = "windows-1252"
	DefaultFormat        = "png"
	DefaultTitle         = "Los 100 de MARCA (2022-2023)"
	DefaultFootnote      = "Fuente: Marca.com"
	DefaultSQLiteFile    = "marcatop.db"
)

// DefaultExclude 是默认不参与地图绘制的国家（按名称匹配，大小写不敏感）。
func DefaultExclude() []string {
	return []string{"antártida", "antarctica"}
}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --headless=false 必须能覆盖 config 中的 headless=true。
type CLIArgs struct {
	Path string

	FromCache    bool
	FromCacheSet bool

	Format    string
	FormatSet bool

	RemoteURL    string
	RemoteURLSet bool

	Headless    bool
	HeadlessSet bool

	Export    string
	ExportSet bool
}

// FileConfig 对应 marcatop.json5 的解析结构。
// 需要能被 local 文件改回零值（false/0/[]）的字段用指针表示“未设置”。
type FileConfig struct {
	Path            string            `json:"path"`
	URL             string            `json:"url"`
	FromCache       *bool             `json:"from_cache"`
	Proxy           ProxyConfig       `json:"proxy"`
	Browser         BrowserConfig     `json:"browser"`
	Positions       map[string]string `json:"positions"`
	StrictPositions *bool             `json:"strict_positions"`
	Shapes          ShapesConfig      `json:"shapes"`
	Render          RenderConfig      `json:"render"`
	Cache           CacheConfig       `json:"cache"`
	Export          ExportConfig      `json:"export"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

type BrowserConfig struct {
	// RemoteURL 非空时连接已有的 Chrome（DevTools websocket/http 地址），否则本地启动。
	RemoteURL      string `json:"remote_url"`
	ExecPath       string `json:"exec_path"`
	Headless       *bool  `json:"headless"`
	UserAgent      string `json:"user_agent"`
	TimeoutSec     *int   `json:"timeout_sec"`
	WaitTimeoutSec *int   `json:"wait_timeout_sec"`
}

type ShapesConfig struct {
	Path      string    `json:"path"`
	NameField string    `json:"name_field"`
	Encoding  string    `json:"encoding"`
	URL       string    `json:"url"`
	Exclude   *[]string `json:"exclude"`
}

type RenderConfig struct {
	Format   string `json:"format"`
	Title    string `json:"title"`
	Footnote string `json:"footnote"`
}

type CacheConfig struct {
	RedisURL string `json:"redis_url"`
	TTLHours *int   `json:"ttl_hours"`
}

type ExportConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string

	URL string
	// FromCache 为 true 时优先重放上次抓取的卡片；默认每次都实时抓取。
	FromCache bool
	ProxyURL  string

	Browser BrowserSettings

	Positions       map[string]string
	StrictPositions bool

	Shapes ShapeSettings
	Render RenderSettings
	Cache  CacheSettings
	Export ExportSettings
}

type BrowserSettings struct {
	RemoteURL   string
	ExecPath    string
	Headless    bool
	UserAgent   string
	Timeout     time.Duration
	WaitTimeout time.Duration
}

type ShapeSettings struct {
	Path      string // 绝对路径
	NameField string
	Encoding  string
	URL       string
	Exclude   []string
}

type RenderSettings struct {
	Format   string
	Title    string
	Footnote string
}

type CacheSettings struct {
	RedisURL string
	TTL      time.Duration
}

type ExportSettings struct {
	Driver string // "" 表示不导出
	DSN    string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/marcatop.json5（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/marcatop.json5（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：CLI > marcatop.local.json5 > marcatop.json5 > 默认值
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath := filepath.Join(absPath, FileName)

		fc, _, err := readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(absCleanFrom(cwdAbs, fc.Path), cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) (EffectiveConfig, error) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	pageURL := strings.TrimSpace(fc.URL)
	if pageURL == "" {
		pageURL = DefaultURL
	}
	if err := validateURL(pageURL, "http", "https"); err != nil {
		return invalid("url 无效：%v", err)
	}

	fromCache := false
	if cli.FromCacheSet {
		fromCache = cli.FromCache
	} else if fc.FromCache != nil {
		fromCache = *fc.FromCache
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return invalid("proxy.url 无效：%w", err)
		}
	}

	// browser
	remoteURL := strings.TrimSpace(fc.Browser.RemoteURL)
	if cli.RemoteURLSet {
		remoteURL = strings.TrimSpace(cli.RemoteURL)
	}
	if remoteURL != "" {
		if err := validateURL(remoteURL, "ws", "wss", "http", "https"); err != nil {
			return invalid("browser.remote_url 无效：%v", err)
		}
	}
	headless := true
	if cli.HeadlessSet {
		headless = cli.Headless
	} else if fc.Browser.Headless != nil {
		headless = *fc.Browser.Headless
	}
	timeoutSec, waitTimeoutSec := intOr(fc.Browser.TimeoutSec), intOr(fc.Browser.WaitTimeoutSec)
	if timeoutSec < 0 || waitTimeoutSec < 0 {
		return invalid("browser 超时不能为负数")
	}
	// 0 表示使用默认值。
	timeout := DefaultTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	waitTimeout := DefaultWaitTimeout
	if waitTimeoutSec > 0 {
		waitTimeout = time.Duration(waitTimeoutSec) * time.Second
	}

	// positions：配置中的映射叠加在默认映射之上。
	positions := domain.DefaultPositionCodes()
	for k, v := range fc.Positions {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			return invalid("positions 的键和值都不能为空")
		}
		positions[k] = v
	}

	// shapes
	shapesPath := strings.TrimSpace(fc.Shapes.Path)
	if shapesPath == "" {
		shapesPath = DefaultShapesPath
	}
	nameField := strings.TrimSpace(fc.Shapes.NameField)
	if nameField == "" {
		nameField = DefaultShapesField
	}
	encoding := strings.TrimSpace(fc.Shapes.Encoding)
	if encoding == "" {
		encoding = DefaultShapeEncoding
	}
	shapesURL := strings.TrimSpace(fc.Shapes.URL)
	if shapesURL != "" {
		if err := validateURL(shapesURL, "http", "https"); err != nil {
			return invalid("shapes.url 无效：%v", err)
		}
	}
	exclude := DefaultExclude()
	if fc.Shapes.Exclude != nil {
		exclude = append([]string{}, (*fc.Shapes.Exclude)...)
	}

	// render
	format := strings.ToLower(strings.TrimSpace(fc.Render.Format))
	if cli.FormatSet {
		format = strings.ToLower(strings.TrimSpace(cli.Format))
	}
	if format == "" {
		format = DefaultFormat
	}
	if format != "png" && format != "svg" {
		return invalid("render.format 只能是 png 或 svg，实际是 %q", format)
	}
	title := fc.Render.Title
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	footnote := fc.Render.Footnote
	if strings.TrimSpace(footnote) == "" {
		footnote = DefaultFootnote
	}

	// cache
	redisURL := strings.TrimSpace(fc.Cache.RedisURL)
	if redisURL != "" {
		if err := validateURL(redisURL, "redis", "rediss"); err != nil {
			return invalid("cache.redis_url 无效：%v", err)
		}
	}
	ttlHours := intOr(fc.Cache.TTLHours)
	if ttlHours < 0 {
		return invalid("cache.ttl_hours 不能为负数")
	}

	// export
	driver := strings.ToLower(strings.TrimSpace(fc.Export.Driver))
	if cli.ExportSet {
		driver = strings.ToLower(strings.TrimSpace(cli.Export))
	}
	dsn := strings.TrimSpace(fc.Export.DSN)
	switch driver {
	case "", "none":
		driver, dsn = "", ""
	case "sqlite":
		if dsn == "" {
			dsn = filepath.Join(absPath, "out", DefaultSQLiteFile)
		}
	case "postgres":
		if dsn == "" {
			return invalid("export.driver=postgres 但 export.dsn 为空")
		}
	default:
		return invalid("export.driver 只能是 sqlite 或 postgres，实际是 %q", driver)
	}

	return EffectiveConfig{
		Path:      absPath,
		URL:       pageURL,
		FromCache: fromCache,
		ProxyURL:  proxyURL,
		Browser: BrowserSettings{
			RemoteURL:   remoteURL,
			ExecPath:    strings.TrimSpace(fc.Browser.ExecPath),
			Headless:    headless,
			UserAgent:   strings.TrimSpace(fc.Browser.UserAgent),
			Timeout:     timeout,
			WaitTimeout: waitTimeout,
		},
		Positions:       positions,
		StrictPositions: fc.StrictPositions != nil && *fc.StrictPositions,
		Shapes: ShapeSettings{
			Path:      absCleanFrom(absPath, shapesPath),
			NameField: nameField,
			Encoding:  encoding,
			URL:       shapesURL,
			Exclude:   exclude,
		},
		Render: RenderSettings{
			Format:   format,
			Title:    title,
			Footnote: footnote,
		},
		Cache: CacheSettings{
			RedisURL: redisURL,
			TTL:      time.Duration(ttlHours) * time.Hour,
		},
		Export: ExportSettings{
			Driver: driver,
			DSN:    dsn,
		},
	}, nil
}

func intOr(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme 必须是 %s：%q", strings.Join(schemes, "/"), raw)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取 path 及同目录的 <name>.local.json5，并把后者合并到前者之上。
// 返回值 exists 表示两者中至少有一个存在（都不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	base, ok, err := readJSON5(path)
	if err != nil {
		return FileConfig{}, false, err
	}
	exists = ok

	local, ok, err := readJSON5(localPath(path))
	if err != nil {
		return FileConfig{}, exists, err
	}
	if ok {
		exists = true
		// WithoutDereference：local 中显式出现的指针字段（哪怕值是 false/0/[]）整体替换 base。
		if err := mergo.Merge(&base, local, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return FileConfig{}, exists, err
		}
	}
	return base, exists, nil
}

func readJSON5(path string) (FileConfig, bool, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json5.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, fmt.Errorf("%s：%w", filepath.Base(path), err)
	}
	return fc, true, nil
}

// localPath: marcatop.json5 -> marcatop.local.json5
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}
