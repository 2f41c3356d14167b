package main

import (
	"log/slog"
	"path/filepath"

	"github.com/John-Robertt/marcatop/internal/browser"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/provider/marca"
)

// newProvider 由生效配置构造 Marca provider；失败现场写到 <path>/cache/debug。
func newProvider(eff config.EffectiveConfig, logger *slog.Logger) marca.Provider {
	return marca.Provider{
		URL: eff.URL,
		Browser: browser.Options{
			RemoteURL: eff.Browser.RemoteURL,
			ExecPath:  eff.Browser.ExecPath,
			Headless:  eff.Browser.Headless,
			ProxyURL:  eff.ProxyURL,
			UserAgent: eff.Browser.UserAgent,
			Logger:    logger,
		},
		Selectors:   marca.DefaultSelectors(),
		WaitTimeout: eff.Browser.WaitTimeout,
		DebugDir:    filepath.Join(eff.Path, "cache", "debug"),
	}
}
