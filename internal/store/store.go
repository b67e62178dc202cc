// Package store persists collected ads in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Rorqualx/adscanner-go/internal/types"
)

// DefaultListLimit caps listings when the caller gives no limit.
const DefaultListLimit = 50

// MaxListLimit is the largest page a listing returns.
const MaxListLimit = 1000

const schema = `
CREATE TABLE IF NOT EXISTS ads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ad_id TEXT,
	bid_meta TEXT,
	dom_html TEXT,
	http_request TEXT,
	etld TEXT,
	screenshot_path TEXT,
	context TEXT,
	created_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_ads_etld ON ads(etld);
CREATE INDEX IF NOT EXISTS idx_ads_created ON ads(created_at);
`

// Ad is one row of the ads table. HTTPRequest holds the ad's source URL.
type Ad struct {
	ID             int64
	AdID           string
	BidMeta        string
	DOMHTML        string
	HTTPRequest    string
	ETLD           string
	ScreenshotPath string
	Context        string
	CreatedAt      time.Time
}

// Record converts a to its API listing form.
func (a Ad) Record() types.AdRecord {
	return types.AdRecord{
		ID:             a.ID,
		AdID:           a.AdID,
		BidMeta:        a.BidMeta,
		AdURL:          a.HTTPRequest,
		ETLD:           a.ETLD,
		ScreenshotPath: a.ScreenshotPath,
		Context:        a.Context,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DomainCount is the number of ads seen for one registrable domain.
type DomainCount struct {
	ETLD  string
	Count int64
}

// Store wraps the ads database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores ad and returns its row id. A zero CreatedAt is set to now.
func (s *Store) Insert(ctx context.Context, ad *Ad) (int64, error) {
	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = time.Now().UTC()
	}
	var shot sql.NullString
	if ad.ScreenshotPath != "" {
		shot = sql.NullString{String: ad.ScreenshotPath, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
	INSERT INTO ads (ad_id, bid_meta, dom_html, http_request, etld, screenshot_path, context, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ad.AdID, ad.BidMeta, ad.DOMHTML, ad.HTTPRequest, ad.ETLD, shot, ad.Context,
		ad.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ad: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	ad.ID = id
	return id, nil
}

// Count returns the number of stored ads.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ads").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ads: %w", err)
	}
	return n, nil
}

// Latest returns up to limit ads, newest first. limit is clamped to
// [1, MaxListLimit]; zero or negative means DefaultListLimit.
func (s *Store) Latest(ctx context.Context, limit int) ([]Ad, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, ad_id, bid_meta, dom_html, http_request, etld, screenshot_path, context, created_at
	FROM ads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ads: %w", err)
	}
	defer rows.Close()

	var ads []Ad
	for rows.Next() {
		var (
			ad                                         Ad
			adID, bidMeta, html, req, etld, shot, pctx sql.NullString
			created                                    sql.NullString
		)
		if err := rows.Scan(&ad.ID, &adID, &bidMeta, &html, &req, &etld, &shot, &pctx, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		ad.AdID = adID.String
		ad.BidMeta = bidMeta.String
		ad.DOMHTML = html.String
		ad.HTTPRequest = req.String
		ad.ETLD = etld.String
		ad.ScreenshotPath = shot.String
		ad.Context = pctx.String
		ad.CreatedAt = parseTime(created.String)
		ads = append(ads, ad)
	}
	return ads, rows.Err()
}

// CountByDomain returns ad counts grouped by etld, largest first.
func (s *Store) CountByDomain(ctx context.Context) ([]DomainCount, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT COALESCE(etld, ''), COUNT(*) AS n FROM ads
	GROUP BY COALESCE(etld, '') ORDER BY n DESC, 1 ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to count ads by domain: %w", err)
	}
	defer rows.Close()

	var counts []DomainCount
	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.ETLD, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan domain count: %w", err)
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

// CountWithScreenshots returns the number of ads that have a saved image.
func (s *Store) CountWithScreenshots(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ads WHERE screenshot_path IS NOT NULL AND screenshot_path != ''").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count screenshots: %w", err)
	}
	return n, nil
}

// parseTime accepts the formats rows may have been written with.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
