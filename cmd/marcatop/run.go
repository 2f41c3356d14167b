package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/marcatop/internal/app/run"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
)

type runFlags struct {
	fromCache bool
	format    string
	chromeURL string
	headless  bool
	export    string
}

func newRunCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "抓取、统计并生成仪表盘",
		Long: `抓取 Marca Top 100 页面，生成频数表与仪表盘。
每次都会实时抓取；--from-cache 改为重放上次抓取的卡片（没有缓存时仍实时抓取）。

产物：
  <path>/out/dashboard.<png|svg>
  <path>/cache/report.json
  <path>/cache/providers/marca/cards.json（卡片缓存）`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				Path:         pathArg(args),
				FromCache:    f.fromCache,
				FromCacheSet: cmd.Flags().Changed("from-cache"),
				Format:       f.format,
				FormatSet:    cmd.Flags().Changed("format"),
				RemoteURL:    f.chromeURL,
				RemoteURLSet: cmd.Flags().Changed("chrome-url"),
				Headless:     f.headless,
				HeadlessSet:  cmd.Flags().Changed("headless"),
				Export:       f.export,
				ExportSet:    cmd.Flags().Changed("export"),
			}
			return runRun(cmd, g, cli, stdout, stderr)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.fromCache, "from-cache", false, "重放上次抓取的卡片缓存，不启动浏览器")
	fl.StringVar(&f.format, "format", "", "仪表盘格式：png|svg（默认读配置，最终默认 png）")
	fl.StringVar(&f.chromeURL, "chrome-url", "", "连接已运行的 Chrome（DevTools 地址，如 ws://127.0.0.1:9222）")
	fl.BoolVar(&f.headless, "headless", true, "本地启动 Chrome 时是否无头")
	fl.StringVar(&f.export, "export", "", "导出数据集：sqlite|postgres")
	return cmd
}

func runRun(cmd *cobra.Command, g *globalFlags, cli config.CLIArgs, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fail(fmt.Errorf("读取当前目录失败：%w", err))
	}
	cwdAbs, _ := filepath.Abs(cwd)

	logger := initLogger(stderr, g.verbose)

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(cwdAbs, err))
		return &exitError{code: 1}
	}

	var obs run.Observer
	progressW, interactive := pickProgressWriter(stdout, stderr)
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Stop()
		obs = ui
	}

	rr := run.ExecuteWithObserver(cmd.Context(), eff, newProvider(eff, logger), obs)

	emitReport(stdout, stderr, rr)
	if interactive {
		emitLocations(progressW, rr)
	}
	if rr.Status != domain.StatusOK {
		return &exitError{code: 1}
	}
	return nil
}

// emitReport 遵守 stdout 契约：非 TTY 时 stdout 只输出一个 RunReport JSON，摘要走 stderr。
func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if ttyWriter(stdout) {
		fmt.Fprintln(stdout, summaryLine(rr))
		if rr.Status == domain.StatusOK {
			printTables(stdout, rr.Tables, defaultTableLimit)
		} else {
			fmt.Fprintf(stderr, "%s: %s\n", rr.ErrorCode, rr.ErrorMsg)
		}
		for _, w := range rr.Warnings {
			fmt.Fprintf(stderr, "警告：%s\n", w)
		}
		return
	}

	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
	if rr.Status != domain.StatusOK {
		fmt.Fprintf(stderr, "%s: %s\n", rr.ErrorCode, rr.ErrorMsg)
	}
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：status=%s source=%s players=%d nationalities=%d teams=%d leagues=%d unmapped_positions=%d unmatched_countries=%d",
		rr.Status, orDash(rr.Source),
		rr.Summary.Players, rr.Summary.Nationalities, rr.Summary.Teams, rr.Summary.Leagues,
		rr.Summary.UnmappedPositions, rr.Summary.UnmatchedCountries,
	)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func reportForConfigError(cwdAbs string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Path:       cwdAbs,
		StartedAt:  now,
		FinishedAt: now,
	}
	rr.Fail(config.Code(err), err.Error())
	rr.Finalize()
	return rr
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if ttyWriter(stderr) {
		return stderr, true
	}
	// 仅重定向了 stderr：退化输出到 stdout。
	if ttyWriter(stdout) {
		return stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, rr domain.RunReport) {
	if rr.Outputs.Dashboard != "" {
		fmt.Fprintf(w, "dashboard: %s\n", rr.Outputs.Dashboard)
	}
	if rr.Outputs.Export != "" {
		fmt.Fprintf(w, "export: %s\n", rr.Outputs.Export)
	}
	fmt.Fprintf(w, "report: %s\n", filepath.Join(rr.Path, "cache", "report.json"))
}
