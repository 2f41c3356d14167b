package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError 携带子命令自己决定的退出码；cobra 自身返回的错误（未知命令/参数）一律视为用法错误。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func fail(err error) error { return &exitError{code: 1, err: err} }

// execute 运行 CLI 并返回退出码：0 成功，1 运行失败，2 用法错误。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "错误：%v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, root.UsageString())
	return 2
}

type globalFlags struct {
	verbose bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "marcatop",
		Short:         "抓取 Marca Top 100 球员榜单并生成统计仪表盘",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(
		newRunCmd(g, stdout, stderr),
		newTablesCmd(g, stdout, stderr),
		newServeCmd(g, stderr),
	)
	return root
}

// pathArg 取可选的 [path] 位置参数。
func pathArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
