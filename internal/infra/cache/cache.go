package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/marcatop/internal/infra/fsx"
)

// Backend 是按 (provider, name) 寻址的字节缓存。
//
// 约束：
// - 未命中返回 ok=false 且 err=nil
// - ReadOnly 的实现对 Write 返回 ErrReadOnly
type Backend interface {
	Read(ctx context.Context, provider, name string) (b []byte, ok bool, err error)
	Write(ctx context.Context, provider, name string, b []byte) error
	// Describe 返回用于日志/报告的位置描述。
	Describe(provider, name string) string
}

// Store 提供 <path>/cache/ 下的文件缓存读写。
type Store struct {
	Root     string // <path>
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// Dir 返回 <path>/cache。
func (s Store) Dir() string { return filepath.Join(s.Root, "cache") }

// Path 返回 provider 缓存文件的绝对路径：<path>/cache/providers/<provider>/<name>。
func (s Store) Path(provider, name string) (string, error) {
	p, n, err := cleanKey(provider, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir(), "providers", p, n), nil
}

func (s Store) Describe(provider, name string) string {
	path, err := s.Path(provider, name)
	if err != nil {
		return ""
	}
	return path
}

func (s Store) Read(_ context.Context, provider, name string) ([]byte, bool, error) {
	path, err := s.Path(provider, name)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) Write(_ context.Context, provider, name string, b []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	path, err := s.Path(provider, name)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), b)
}

var (
	providerNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)
	fileNameRE     = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

func cleanKey(provider, name string) (string, string, error) {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return "", "", fmt.Errorf("provider 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !providerNameRE.MatchString(p) {
		return "", "", fmt.Errorf("非法 provider：%q", p)
	}
	n := strings.TrimSpace(name)
	if n == "" || n == "." || n == ".." || !fileNameRE.MatchString(n) {
		return "", "", fmt.Errorf("非法缓存名：%q", name)
	}
	return p, n, nil
}
