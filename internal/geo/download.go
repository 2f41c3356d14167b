package geo

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"

	"github.com/John-Robertt/marcatop/internal/infra/fsx"
)

// maxArchiveSize 是下载的 zip 上限。
const maxArchiveSize = 200 << 20

// Ensure 在 shpPath 不存在且 url 非空时下载 zip 并解压同名的 shapefile 组件（.shp/.shx/.dbf/.prj/.cpg）到 shpPath 所在目录。
// 本地文件已存在时不做任何网络请求。
func Ensure(ctx context.Context, c *resty.Client, shpPath, url string, logger *slog.Logger) error {
	if _, err := os.Stat(shpPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return &Error{Path: shpPath, Err: err}
	}
	if strings.TrimSpace(url) == "" {
		return &Error{Path: shpPath, Err: os.ErrNotExist}
	}
	if c == nil {
		return &Error{Path: shpPath, Err: errors.New("http client 不能为空")}
	}
	if logger == nil {
		logger = slog.Default()
	}

	resp, err := c.R().SetContext(ctx).Get(url)
	if err != nil {
		return &Error{Path: shpPath, Err: fmt.Errorf("下载 %s 失败：%w", url, err)}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &Error{Path: shpPath, Err: fmt.Errorf("下载 %s 失败：HTTP %d", url, resp.StatusCode())}
	}
	body := resp.Body()
	if len(body) > maxArchiveSize {
		return &Error{Path: shpPath, Err: fmt.Errorf("压缩包过大：%s", humanize.Bytes(uint64(len(body))))}
	}
	logger.Info("已下载地图数据", "url", url, "size", humanize.Bytes(uint64(len(body))))

	n, err := extract(body, shpPath)
	if err != nil {
		return &Error{Path: shpPath, Err: err}
	}
	if n == 0 {
		return &Error{Path: shpPath, Err: fmt.Errorf("压缩包中没有 %s", filepath.Base(shpPath))}
	}
	return nil
}

func extract(archive []byte, shpPath string) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return 0, fmt.Errorf("解析 zip 失败：%w", err)
	}
	dir := filepath.Dir(shpPath)
	stem := strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))

	found := false
	n := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// 只按文件名匹配，忽略压缩包内的目录层级（也避免路径穿越）。
		base := filepath.Base(filepath.FromSlash(f.Name))
		ext := strings.ToLower(filepath.Ext(base))
		if !strings.EqualFold(strings.TrimSuffix(base, filepath.Ext(base)), stem) {
			continue
		}
		switch ext {
		case ".shp", ".shx", ".dbf", ".prj", ".cpg":
		default:
			continue
		}
		b, err := readZipFile(f)
		if err != nil {
			return n, err
		}
		name := stem + ext
		if ext == ".shp" {
			name = filepath.Base(shpPath)
			found = true
		}
		if err := fsx.WriteFileAtomic(dir, name, b); err != nil {
			return n, err
		}
		n++
	}
	if !found {
		return 0, nil
	}
	return n, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxArchiveSize))
}
