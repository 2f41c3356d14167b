package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// initLogger 把默认 slog 指向 stderr 上的 tint handler；stderr 不是终端时关闭颜色。
func initLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	noColor := true
	if f, ok := w.(*os.File); ok && isTTY(f) {
		noColor = false
	}
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}))
	slog.SetDefault(logger)
	return logger
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// ttyWriter 报告 w 是否是交互终端。
func ttyWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTTY(f)
}
