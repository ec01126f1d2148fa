/*
Package store persists analysis results and reported actuals in SQLite and
keeps analyst estimates in redis.
*/
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/types"
)

var IST = time.FixedZone("IST", 5*3600+1800)

type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; sqlite serialises anyway.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		quarter INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		sentiment TEXT NOT NULL,
		sentiment_score REAL NOT NULL,
		detection_time_sec REAL NOT NULL,
		extraction_method TEXT,
		confidence REAL,
		attachment_url TEXT,
		payload TEXT NOT NULL,
		analyzed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_symbol ON results(symbol, fiscal_year, quarter);

	CREATE TABLE IF NOT EXISTS actuals (
		symbol TEXT NOT NULL,
		quarter INTEGER NOT NULL,
		fiscal_year INTEGER NOT NULL,
		revenue TEXT,
		profit_after_tax TEXT,
		eps TEXT,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (symbol, quarter, fiscal_year)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Emit stores the result and records the quarter's actuals, so later
// quarters can be compared against it.
func (db *DB) Emit(ctx context.Context, r types.AnalysisResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO results (symbol, quarter, fiscal_year, sentiment, sentiment_score, detection_time_sec,
		extraction_method, confidence, attachment_url, payload, analyzed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Symbol, r.Quarter, r.FiscalYear, string(r.Sentiment), r.SentimentScore, r.DetectionTimeSec,
		r.Metrics.ExtractionMethod, r.Metrics.Confidence, r.Announcement.AttachmentURL, string(payload), analyzedAt(r))
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}

	if err := saveActuals(ctx, tx, r.Metrics); err != nil {
		return err
	}
	return tx.Commit()
}

func analyzedAt(r types.AnalysisResult) time.Time {
	if r.AnalyzedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.AnalyzedAt.UTC()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveActuals upserts a quarter's reported figures. Fields missing from m
// keep their stored value.
func (db *DB) SaveActuals(ctx context.Context, m types.ExtractedMetrics) error {
	return saveActuals(ctx, db.conn, m)
}

func saveActuals(ctx context.Context, ex execer, m types.ExtractedMetrics) error {
	if m.Symbol == "" || m.FieldCount() == 0 {
		return nil
	}
	_, err := ex.ExecContext(ctx, `
	INSERT INTO actuals (symbol, quarter, fiscal_year, revenue, profit_after_tax, eps, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol, quarter, fiscal_year) DO UPDATE SET
		revenue = COALESCE(excluded.revenue, actuals.revenue),
		profit_after_tax = COALESCE(excluded.profit_after_tax, actuals.profit_after_tax),
		eps = COALESCE(excluded.eps, actuals.eps),
		updated_at = excluded.updated_at`,
		strings.ToUpper(m.Symbol), m.Quarter, m.FiscalYear,
		nullString(m.Revenue), nullString(m.ProfitAfterTax), nullString(m.EPS), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save actuals: %w", err)
	}
	return nil
}

// PrevQuarter returns the quarter before (q, fy), wrapping Q1 to Q4 of the
// previous fiscal year.
func PrevQuarter(q, fy int) (int, int) {
	if q <= 1 {
		return 4, fy - 1
	}
	return q - 1, fy
}

// GetPriorActuals looks up the preceding quarter and the same quarter of the
// previous fiscal year. It returns rerrors.ErrNotFound when neither is stored.
func (db *DB) GetPriorActuals(ctx context.Context, symbol string, quarter, fiscalYear int) (*types.PriorPeriodActuals, error) {
	symbol = strings.ToUpper(symbol)
	pq, pfy := PrevQuarter(quarter, fiscalYear)

	prevQ, errQ := db.actuals(ctx, symbol, pq, pfy)
	prevY, errY := db.actuals(ctx, symbol, quarter, fiscalYear-1)
	for _, err := range []error{errQ, errY} {
		if err != nil && !errors.Is(err, rerrors.ErrNotFound) {
			return nil, err
		}
	}
	if errQ != nil && errY != nil {
		return nil, rerrors.ErrNotFound
	}

	var p types.PriorPeriodActuals
	if errQ == nil {
		p.RevenuePrevQuarter = prevQ.Revenue
		p.ProfitPrevQuarter = prevQ.ProfitAfterTax
	}
	if errY == nil {
		p.RevenuePrevYear = prevY.Revenue
		p.ProfitPrevYear = prevY.ProfitAfterTax
	}
	return &p, nil
}

func (db *DB) actuals(ctx context.Context, symbol string, quarter, fiscalYear int) (types.ExtractedMetrics, error) {
	var revenue, profit, eps sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT revenue, profit_after_tax, eps FROM actuals WHERE symbol = ? AND quarter = ? AND fiscal_year = ?`,
		symbol, quarter, fiscalYear).Scan(&revenue, &profit, &eps)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ExtractedMetrics{}, rerrors.ErrNotFound
	}
	if err != nil {
		return types.ExtractedMetrics{}, fmt.Errorf("failed to query actuals: %w", err)
	}
	return types.ExtractedMetrics{
		Symbol:         symbol,
		Quarter:        quarter,
		FiscalYear:     fiscalYear,
		Revenue:        parseNull(revenue),
		ProfitAfterTax: parseNull(profit),
		EPS:            parseNull(eps),
	}, nil
}

// RecentResults returns the latest stored results, newest first.
func (db *DB) RecentResults(ctx context.Context, limit int) ([]types.AnalysisResult, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT payload FROM results ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []types.AnalysisResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r types.AnalysisResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNull(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
