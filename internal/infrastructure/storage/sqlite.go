// Package storage implements the persistence gateway on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS editions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	year           INTEGER NOT NULL,
	stueck         INTEGER NOT NULL,
	title          TEXT,
	url            TEXT,
	published_date TIMESTAMP,
	scraped_at     TIMESTAMP,
	analyzed_at    TIMESTAMP,
	UNIQUE (year, stueck)
);

CREATE TABLE IF NOT EXISTS bulletin_items (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	edition_id            INTEGER NOT NULL REFERENCES editions (id) ON DELETE CASCADE,
	punkt                 INTEGER NOT NULL,
	title                 TEXT,
	short_title           TEXT,
	category              TEXT,
	content               TEXT,
	attachments_json      TEXT NOT NULL DEFAULT '[]',
	relevance_score       REAL,
	relevance_explanation TEXT,
	analyzed_at           TIMESTAMP,
	read_at               TIMESTAMP,
	pdf_analysis          TEXT,
	pdf_analyzed_at       TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_edition ON bulletin_items (edition_id);
CREATE INDEX IF NOT EXISTS idx_items_relevance ON bulletin_items (relevance_score);
CREATE INDEX IF NOT EXISTS idx_items_analyzed ON bulletin_items (analyzed_at);
CREATE INDEX IF NOT EXISTS idx_items_read ON bulletin_items (read_at);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

// SQLiteStore persists editions and items in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.EditionStore = (*SQLiteStore)(nil)

// Open creates the database file (and its directory) if needed, applies
// pragmas, and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const editionColumns = "id, year, stueck, title, url, published_date, scraped_at, analyzed_at"

// EditionByKey looks an edition up by natural key; nil when absent.
func (s *SQLiteStore) EditionByKey(ctx context.Context, year, stueck int) (*domain.Edition, error) {
	query, args, err := sq.Select(editionColumns).
		From("editions").
		Where(sq.Eq{"year": year, "stueck": stueck}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build edition query: %w", err)
	}

	edition, err := scanEdition(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query edition %d-%d: %w", year, stueck, err)
	}
	return &edition, nil
}

// UpsertEdition inserts a discovered edition. An existing edition is
// returned untouched so scrape and analysis state survive rescans.
func (s *SQLiteStore) UpsertEdition(ctx context.Context, raw domain.RawEdition) (domain.Edition, bool, error) {
	existing, err := s.EditionByKey(ctx, raw.Year, raw.Stueck)
	if err != nil {
		return domain.Edition{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	query, args, err := sq.Insert("editions").
		Columns("year", "stueck", "title", "url", "published_date").
		Values(raw.Year, raw.Stueck, raw.Title, raw.URL, nullableTime(raw.PublishedDate)).
		ToSql()
	if err != nil {
		return domain.Edition{}, false, fmt.Errorf("build edition insert: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Edition{}, false, fmt.Errorf("insert edition %s: %w", raw.Key(), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Edition{}, false, fmt.Errorf("edition insert id: %w", err)
	}

	return domain.Edition{
		ID:            id,
		Year:          raw.Year,
		Stueck:        raw.Stueck,
		Title:         raw.Title,
		URL:           raw.URL,
		PublishedDate: raw.PublishedDate,
	}, true, nil
}

// MarkScraped stamps scraped_at.
func (s *SQLiteStore) MarkScraped(ctx context.Context, editionID int64) error {
	return s.stampEdition(ctx, editionID, "scraped_at")
}

// MarkAnalyzed stamps analyzed_at.
func (s *SQLiteStore) MarkAnalyzed(ctx context.Context, editionID int64) error {
	return s.stampEdition(ctx, editionID, "analyzed_at")
}

func (s *SQLiteStore) stampEdition(ctx context.Context, editionID int64, column string) error {
	query, args, err := sq.Update("editions").
		Set(column, time.Now()).
		Where(sq.Eq{"id": editionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s update: %w", column, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set %s for edition %d: %w", column, editionID, err)
	}
	return nil
}

// ListAll returns editions newest-first, optionally filtered by year.
func (s *SQLiteStore) ListAll(ctx context.Context, year int) ([]domain.Edition, error) {
	builder := sq.Select(editionColumns).
		From("editions").
		OrderBy("year DESC", "stueck DESC")
	if year > 0 {
		builder = builder.Where(sq.Eq{"year": year})
	}
	return s.queryEditions(ctx, builder)
}

// ListUnscraped returns editions without items, newest-first.
func (s *SQLiteStore) ListUnscraped(ctx context.Context) ([]domain.Edition, error) {
	return s.queryEditions(ctx, sq.Select(editionColumns).
		From("editions").
		Where("scraped_at IS NULL").
		OrderBy("year DESC", "stueck DESC"))
}

// ListUnanalyzed returns scraped but not yet analyzed editions.
func (s *SQLiteStore) ListUnanalyzed(ctx context.Context) ([]domain.Edition, error) {
	return s.queryEditions(ctx, sq.Select(editionColumns).
		From("editions").
		Where("scraped_at IS NOT NULL").
		Where("analyzed_at IS NULL").
		OrderBy("year DESC", "stueck DESC"))
}

func (s *SQLiteStore) queryEditions(ctx context.Context, builder sq.SelectBuilder) ([]domain.Edition, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build editions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query editions: %w", err)
	}
	defer rows.Close()

	var editions []domain.Edition
	for rows.Next() {
		edition, err := scanEdition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edition: %w", err)
		}
		editions = append(editions, edition)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate editions: %w", err)
	}
	return editions, nil
}

// AddItems stores an edition's item set in one transaction.
func (s *SQLiteStore) AddItems(ctx context.Context, editionID int64, items []domain.RawItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin items tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range items {
		attachments, err := json.Marshal(coalesceAttachments(item.Attachments))
		if err != nil {
			return fmt.Errorf("marshal attachments for punkt %d: %w", item.Punkt, err)
		}

		query, args, err := sq.Insert("bulletin_items").
			Columns("edition_id", "punkt", "title", "category", "content", "attachments_json").
			Values(editionID, item.Punkt, item.Title, item.Category, item.Content, string(attachments)).
			ToSql()
		if err != nil {
			return fmt.Errorf("build item insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert item %d: %w", item.Punkt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit items: %w", err)
	}
	return nil
}

const itemColumns = "id, edition_id, punkt, title, short_title, category, content, " +
	"attachments_json, relevance_score, relevance_explanation, analyzed_at, read_at, " +
	"pdf_analysis, pdf_analyzed_at"

// ListItems returns an edition's items ordered by punkt.
func (s *SQLiteStore) ListItems(ctx context.Context, editionID int64) ([]domain.BulletinItem, error) {
	query, args, err := sq.Select(itemColumns).
		From("bulletin_items").
		Where(sq.Eq{"edition_id": editionID}).
		OrderBy("punkt").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.BulletinItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// ItemByID returns one item; nil when absent.
func (s *SQLiteStore) ItemByID(ctx context.Context, itemID int64) (*domain.BulletinItem, error) {
	query, args, err := sq.Select(itemColumns).
		From("bulletin_items").
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item %d: %w", itemID, err)
	}
	return &item, nil
}

// UpdateItemScore stores one item's analysis result.
func (s *SQLiteStore) UpdateItemScore(ctx context.Context, itemID int64, score float64, explanation, shortTitle string) error {
	builder := sq.Update("bulletin_items").
		Set("relevance_score", score).
		Set("relevance_explanation", explanation).
		Set("analyzed_at", time.Now()).
		Where(sq.Eq{"id": itemID})
	if shortTitle != "" {
		builder = builder.Set("short_title", shortTitle)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build score update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update score for item %d: %w", itemID, err)
	}
	return nil
}

// UpdateItemPDFAnalysis stores the on-demand PDF analysis text.
func (s *SQLiteStore) UpdateItemPDFAnalysis(ctx context.Context, itemID int64, analysis string) error {
	query, args, err := sq.Update("bulletin_items").
		Set("pdf_analysis", analysis).
		Set("pdf_analyzed_at", time.Now()).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build pdf analysis update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update pdf analysis for item %d: %w", itemID, err)
	}
	return nil
}

// MarkItemRead sets read_at the first time a consumer views the item. It
// returns false when the item is unknown or already read.
func (s *SQLiteStore) MarkItemRead(ctx context.Context, itemID int64) (bool, error) {
	query, args, err := sq.Update("bulletin_items").
		Set("read_at", time.Now()).
		Where(sq.Eq{"id": itemID}).
		Where("read_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build read update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("mark item %d read: %w", itemID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read update result: %w", err)
	}
	return affected > 0, nil
}

// ResetEdition deletes the edition's items and clears both timestamps,
// returning it to the pending state.
func (s *SQLiteStore) ResetEdition(ctx context.Context, editionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleteQ, deleteArgs, err := sq.Delete("bulletin_items").
		Where(sq.Eq{"edition_id": editionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build items delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQ, deleteArgs...); err != nil {
		return fmt.Errorf("delete items for edition %d: %w", editionID, err)
	}

	updateQ, updateArgs, err := sq.Update("editions").
		Set("scraped_at", nil).
		Set("analyzed_at", nil).
		Where(sq.Eq{"id": editionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build edition reset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, updateQ, updateArgs...); err != nil {
		return fmt.Errorf("reset edition %d: %w", editionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// Stats counts editions and items per processing state.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats
	counts := []struct {
		dest  *int
		query string
	}{
		{&stats.TotalEditions, "SELECT COUNT(*) FROM editions"},
		{&stats.ScrapedEditions, "SELECT COUNT(*) FROM editions WHERE scraped_at IS NOT NULL"},
		{&stats.AnalyzedEditions, "SELECT COUNT(*) FROM editions WHERE analyzed_at IS NOT NULL"},
		{&stats.TotalItems, "SELECT COUNT(*) FROM bulletin_items"},
		{&stats.AnalyzedItems, "SELECT COUNT(*) FROM bulletin_items WHERE analyzed_at IS NOT NULL"},
		{&stats.RelevantItems, "SELECT COUNT(*) FROM bulletin_items WHERE relevance_score >= 60"},
	}

	for _, count := range counts {
		if err := s.db.QueryRowContext(ctx, count.query).Scan(count.dest); err != nil {
			return domain.Stats{}, fmt.Errorf("stats query: %w", err)
		}
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdition(row rowScanner) (domain.Edition, error) {
	var (
		edition   domain.Edition
		published sql.NullTime
		scraped   sql.NullTime
		analyzed  sql.NullTime
		title     sql.NullString
		url       sql.NullString
	)

	err := row.Scan(&edition.ID, &edition.Year, &edition.Stueck, &title, &url, &published, &scraped, &analyzed)
	if err != nil {
		return domain.Edition{}, err
	}

	edition.Title = title.String
	edition.URL = url.String
	edition.PublishedDate = timePtr(published)
	edition.ScrapedAt = timePtr(scraped)
	edition.AnalyzedAt = timePtr(analyzed)
	return edition, nil
}

func scanItem(row rowScanner) (domain.BulletinItem, error) {
	var (
		item        domain.BulletinItem
		title       sql.NullString
		shortTitle  sql.NullString
		category    sql.NullString
		content     sql.NullString
		attachments string
		score       sql.NullFloat64
		explanation sql.NullString
		analyzed    sql.NullTime
		read        sql.NullTime
		pdfAnalysis sql.NullString
		pdfAnalyzed sql.NullTime
	)

	err := row.Scan(&item.ID, &item.EditionID, &item.Punkt, &title, &shortTitle, &category,
		&content, &attachments, &score, &explanation, &analyzed, &read, &pdfAnalysis, &pdfAnalyzed)
	if err != nil {
		return domain.BulletinItem{}, err
	}

	item.Title = title.String
	item.ShortTitle = shortTitle.String
	item.Category = category.String
	item.Content = content.String
	item.RelevanceExplanation = explanation.String
	item.PDFAnalysis = pdfAnalysis.String
	item.AnalyzedAt = timePtr(analyzed)
	item.ReadAt = timePtr(read)
	item.PDFAnalyzedAt = timePtr(pdfAnalyzed)
	if score.Valid {
		item.RelevanceScore = &score.Float64
	}

	if err := json.Unmarshal([]byte(attachments), &item.Attachments); err != nil {
		return domain.BulletinItem{}, fmt.Errorf("decode attachments: %w", err)
	}
	// Stored URLs may still carry HTML-entity escaping from the portal.
	for i := range item.Attachments {
		item.Attachments[i].URL = html.UnescapeString(item.Attachments[i].URL)
	}

	return item, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	value := t.Time
	return &value
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func coalesceAttachments(attachments []domain.Attachment) []domain.Attachment {
	if attachments == nil {
		return []domain.Attachment{}
	}
	return attachments
}
