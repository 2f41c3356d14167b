package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/marcatop/internal/app/run"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/domain"
)

const defaultTableLimit = 10

func newTablesCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tables [path]",
		Short: "打印缓存数据集的频数表（不启动浏览器）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := initLogger(stderr, g.verbose)
			cwd, err := os.Getwd()
			if err != nil {
				return fail(err)
			}
			eff, err := config.LoadEffective(cwd, config.CLIArgs{Path: pathArg(args)})
			if err != nil {
				return fail(err)
			}
			ds, err := run.LoadCached(cmd.Context(), eff, newProvider(eff, logger))
			if err != nil {
				return fail(err)
			}
			if asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(ds.Tables); err != nil {
					return fail(err)
				}
				return nil
			}
			fmt.Fprintf(stdout, "players=%d fetched_at=%s\n", len(ds.Normalized.Records), ds.Cards.FetchedAt.Format("2006-01-02 15:04:05Z07:00"))
			printTables(stdout, ds.Tables, limit)
			for _, u := range ds.Normalized.UnmappedPositions {
				fmt.Fprintf(stderr, "警告：位置 %q 未映射（%d 名）\n", u.Value, u.Count)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultTableLimit, "每张表最多打印的行数（<=0 表示全部）")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出全部频数表")
	return cmd
}

// printTables 用 go-pretty 打印五张频数表（每张最多 limit 行，截断时注明剩余行数）。
func printTables(w io.Writer, tables domain.Tables, limit int) {
	for _, c := range domain.Columns() {
		ft := tables.Get(c)
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle(strings.ToUpper(string(c)))
		t.AppendHeader(table.Row{string(c), "n"})
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

		shown := ft
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		for _, row := range shown {
			t.AppendRow(table.Row{row.Value, row.N})
		}
		footer := table.Row{"total", ft.Total()}
		if rest := len(ft) - len(shown); rest > 0 {
			footer = table.Row{fmt.Sprintf("total（另有 %d 行未显示）", rest), ft.Total()}
		}
		t.AppendFooter(footer)
		t.SetStyle(table.StyleRounded)
		t.Render()
	}
}
