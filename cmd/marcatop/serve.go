package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/marcatop/internal/app/run"
	"github.com/John-Robertt/marcatop/internal/config"
	"github.com/John-Robertt/marcatop/internal/render"
	"github.com/John-Robertt/marcatop/internal/server"
)

func newServeCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	var (
		addr    string
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "在浏览器中查看仪表盘（基于卡片缓存）",
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
			ctx := cmd.Context()

			ds, err := run.LoadCached(ctx, eff, newProvider(eff, logger))
			if err != nil {
				return fail(err)
			}
			// 地图数据缺失不妨碍查看其余四个面板。
			joined, unmatched, err := run.LoadShapes(ctx, eff, ds.Tables.Nationality)
			if err != nil {
				logger.Warn("地图数据不可用，地图面板留空", "err", err)
			}

			s := &server.Server{
				Data: render.Data{
					Title:    eff.Render.Title,
					Footnote: eff.Render.Footnote,
					Tables:   ds.Tables,
					Shapes:   joined,
				},
				Players:        ds.Normalized.Records,
				Unmatched:      unmatched,
				ReportPath:     filepath.Join(eff.Path, "cache", "report.json"),
				AllowedOrigins: origins,
				Logger:         logger,
			}
			if err := s.ListenAndServe(ctx, addr); err != nil {
				return fail(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "监听地址")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "允许跨域访问的来源（默认任意）")
	return cmd
}
