// Package export 把一次运行的球员记录与频数表写入 SQLite 或 Postgres。
package export

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/lib/pq"

	"github.com/John-Robertt/marcatop/internal/domain"
	"github.com/John-Robertt/marcatop/internal/infra/fsx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed schema_sqlite.sql
var schemaSQLite string

//go:embed schema_postgres.sql
var schemaPostgres string

// Run 标识一次导出对应的运行。
type Run struct {
	ID     string
	URL    string
	Source string
	At     time.Time
}

// Exporter 持有数据库连接。
type Exporter struct {
	db     *sql.DB
	driver string
}

// Open 打开数据库；sqlite 会先创建 DSN 所在目录。
func Open(driver, dsn string) (*Exporter, error) {
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := fsx.EnsureDir(filepath.Dir(dsn)); err != nil {
				return nil, err
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("不支持的导出驱动 %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// 单文件库：串行写即可。
		db.SetMaxOpenConns(1)
	}
	return &Exporter{db: db, driver: driver}, nil
}

func (e *Exporter) Close() error { return e.db.Close() }

// Migrate 建表（幂等）。
func (e *Exporter) Migrate(ctx context.Context) error {
	schema := schemaSQLite
	if e.driver == DriverPostgres {
		schema = schemaPostgres
	}
	if _, err := e.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("建表失败：%w", err)
	}
	return nil
}

// Write 在一个事务内写入 run、全部球员与五张频数表。
// 同一 run_id 重复写入会因主键冲突失败（一次运行只导出一次）。
func (e *Exporter) Write(ctx context.Context, run Run, records []domain.PlayerRecord, tables domain.Tables) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, e.rebind(`INSERT INTO runs (run_id, url, source, created_at) VALUES (?, ?, ?, ?)`),
		run.ID, run.URL, run.Source, e.timeArg(run.At)); err != nil {
		return fmt.Errorf("写入 runs 失败：%w", err)
	}

	stmt, err := tx.PrepareContext(ctx, e.rebind(`INSERT INTO players (run_id, rank, name, nationality, team, league, age, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, run.ID, r.Rank, r.Name, r.Nationality, r.Team, r.League, r.Age, r.Position); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("写入 players 失败（rank=%d）：%w", r.Rank, err)
		}
	}
	if err = stmt.Close(); err != nil {
		return err
	}

	stmt, err = tx.PrepareContext(ctx, e.rebind(`INSERT INTO frequencies (run_id, col, value, n) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	for _, col := range domain.Columns() {
		for _, c := range tables.Get(col) {
			if _, err = stmt.ExecContext(ctx, run.ID, string(col), c.Value, c.N); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("写入 frequencies 失败（%s=%q）：%w", col, c.Value, err)
			}
		}
	}
	if err = stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

// Players 读回某次运行的球员（按 rank 升序）。
func (e *Exporter) Players(ctx context.Context, runID string) ([]domain.PlayerRecord, error) {
	rows, err := e.db.QueryContext(ctx, e.rebind(`SELECT rank, name, nationality, team, league, age, position FROM players WHERE run_id = ? ORDER BY rank`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PlayerRecord
	for rows.Next() {
		var r domain.PlayerRecord
		if err := rows.Scan(&r.Rank, &r.Name, &r.Nationality, &r.Team, &r.League, &r.Age, &r.Position); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Frequencies 读回某次运行某一列的频数表（按 n 降序、value 升序）。
func (e *Exporter) Frequencies(ctx context.Context, runID string, col domain.Column) (domain.FreqTable, error) {
	rows, err := e.db.QueryContext(ctx, e.rebind(`SELECT value, n FROM frequencies WHERE run_id = ? AND col = ? ORDER BY n DESC, value`), runID, string(col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out domain.FreqTable
	for rows.Next() {
		var c domain.Count
		if err := rows.Scan(&c.Value, &c.N); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Verify 读回某次运行写入的行，确认球员数与每列频数合计都等于 len(records)。
func (e *Exporter) Verify(ctx context.Context, runID string, records []domain.PlayerRecord) error {
	players, err := e.Players(ctx, runID)
	if err != nil {
		return fmt.Errorf("读回 players 失败：%w", err)
	}
	if len(players) != len(records) {
		return fmt.Errorf("导出校验失败：players %d 行，期望 %d", len(players), len(records))
	}
	for _, col := range domain.Columns() {
		ft, err := e.Frequencies(ctx, runID, col)
		if err != nil {
			return fmt.Errorf("读回 frequencies 失败（%s）：%w", col, err)
		}
		if ft.Total() != len(records) {
			return fmt.Errorf("导出校验失败：%s 合计 %d，期望 %d", col, ft.Total(), len(records))
		}
	}
	return nil
}

// rebind 把 ? 占位符改写为 postgres 的 $n。
func (e *Exporter) rebind(q string) string {
	if e.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (e *Exporter) timeArg(t time.Time) any {
	if e.driver == DriverPostgres {
		return t.UTC()
	}
	return t.UTC().Format(time.RFC3339)
}
