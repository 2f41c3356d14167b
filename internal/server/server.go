// Package server 提供仪表盘的交互式查看：HTML 页面、按需绘制的图片与 JSON 接口。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/render"
)

const shutdownTimeout = 5 * time.Second

// Server 只读地展示一份已聚合的数据集；不会触发抓取。
type Server struct {
	Data       render.Data
	Players    []domain.PlayerRecord
	Unmatched  []domain.UnmatchedCountry
	ReportPath string
	// AllowedOrigins 为空时允许任意来源（只读接口）。
	AllowedOrigins []string
	Logger         *slog.Logger

	mu     sync.Mutex
	images map[string][]byte
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Routes 返回完整的路由。
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/", templ.Handler(page(s.Data, s.Players, s.Unmatched)).ServeHTTP)
	r.Get("/dashboard.{format}", s.handleDashboard)

	r.Route("/api", func(r chi.Router) {
		r.Get("/report", s.handleReport)
		r.Get("/players", s.handlePlayers)
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{name}", s.handleTable)
	})
	return r
}

// ListenAndServe 监听 addr，直到 ctx 结束后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("开始监听", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger().Info("正在关闭")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "players": len(s.Players)})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")
	if format != render.FormatPNG && format != render.FormatSVG {
		http.NotFound(w, r)
		return
	}
	b, err := s.image(format)
	if err != nil {
		s.logger().Error("绘制仪表盘失败", "format", format, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", render.ContentType(format))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(b)
}

// image 按格式缓存绘制结果（数据集只读，结果确定）。
func (s *Server) image(format string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.images[format]; ok {
		return b, nil
	}
	b, err := render.Bytes(format, s.Data)
	if err != nil {
		return nil, err
	}
	if s.images == nil {
		s.images = map[string][]byte{}
	}
	s.images[format] = b
	return b, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.ReportPath == "" {
		http.NotFound(w, r)
		return
	}
	b, err := os.ReadFile(s.ReportPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players := s.Players
	if players == nil {
		players = []domain.PlayerRecord{}
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Data.Tables)
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := domain.Column(chi.URLParam(r, "name"))
	for _, c := range domain.Columns() {
		if c == name {
			t := s.Data.Tables.Get(c)
			if t == nil {
				t = domain.FreqTable{}
			}
			writeJSON(w, http.StatusOK, t)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "未知的列：" + string(name)})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"dur", time.Since(started),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
