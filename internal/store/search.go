package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/juristools/stjsearch/internal/record"
)

// ErrQuery marks a full-text query the index rejected (bad FTS5 syntax).
// Reported to the caller; never a crash.
var ErrQuery = errors.New("invalid search query")

// Order selects how search results are sorted. Exactly one mode is
// active per request.
type Order int

const (
	// OrderRecency sorts by decision date descending (the default).
	OrderRecency Order = iota
	// OrderRelevance sorts by bm25 rank ascending: more negative rank is
	// a better match, so best matches come first.
	OrderRelevance
)

// ParseOrder maps the CLI spelling to an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "recency":
		return OrderRecency, nil
	case "relevance":
		return OrderRelevance, nil
	default:
		return OrderRecency, fmt.Errorf("unknown order %q (want recency or relevance)", s)
	}
}

// Filters are structured constraints ANDed with the full-text match.
// Judge and Class match case-sensitively by infix; Since is a lexical
// lower bound on the fixed-width YYYYMMDD decision date.
type Filters struct {
	Judge string
	Class string
	Since string
}

// clauses renders the filter SQL fragment (prefixed with AND) and its
// bind parameters. Empty filters produce an empty fragment.
func (f Filters) clauses() (string, []any) {
	var parts []string
	var params []any
	if f.Judge != "" {
		parts = append(parts, "a.ministro_relator LIKE ?")
		params = append(params, "%"+f.Judge+"%")
	}
	if f.Class != "" {
		parts = append(parts, "a.sigla_classe LIKE ?")
		params = append(params, "%"+f.Class+"%")
	}
	if f.Since != "" {
		parts = append(parts, "a.data_decisao >= ?")
		params = append(params, f.Since)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(parts, " AND "), params
}

// SearchResult is a matched record plus its bm25 rank for the query.
type SearchResult struct {
	record.Acordao
	Rank float64
}

// Search runs a full-text query with structured filters. The query
// string is handed to FTS5 verbatim (AND/OR, "phrases", prefix*). Zero
// matches yield an empty slice, not an error.
func (s *Store) Search(ctx context.Context, query string, filters Filters, limit int, order Order) ([]SearchResult, error) {
	filterSQL, filterParams := filters.clauses()

	orderClause := "a.data_decisao DESC"
	if order == OrderRelevance {
		orderClause = "rank"
	}

	q := fmt.Sprintf(`
		SELECT %s, bm25(acordaos_fts) AS rank
		FROM acordaos_fts f
		JOIN acordaos a ON a.rowid = f.rowid
		WHERE acordaos_fts MATCH ?%s
		ORDER BY %s LIMIT ?`,
		aliased(recordColumns), filterSQL, orderClause)

	params := make([]any, 0, len(filterParams)+2)
	params = append(params, query)
	params = append(params, filterParams...)
	params = append(params, limit)

	rows, err := s.db.QueryContext(ctx, q, params...)
	if err != nil {
		// The only user-controlled input here is the MATCH expression, so
		// a query-time failure is reported as bad syntax.
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		a, rank, err := scanRankedRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		res.Acordao = *a
		res.Rank = rank
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return results, nil
}

// Bucket is one line of an aggregate breakdown: a key and its raw count.
// Percentages are for the presentation layer to derive.
type Bucket struct {
	Key   string
	Count int
}

// SearchStats is the aggregate report for a filtered full-text match.
type SearchStats struct {
	Total     int
	ByOrgao   []Bucket // all judging bodies, by count desc
	ByClasse  []Bucket // top 10 class codes
	ByRelator []Bucket // top 10 reporting judges
	ByYear    []Bucket // most recent 15 decision years, empty dates excluded
}

// SearchStats runs the same filtered match as Search but returns counts.
func (s *Store) SearchStats(ctx context.Context, query string, filters Filters) (*SearchStats, error) {
	filterSQL, filterParams := filters.clauses()
	base := fmt.Sprintf(`
		FROM acordaos_fts f
		JOIN acordaos a ON a.rowid = f.rowid
		WHERE acordaos_fts MATCH ?%s`, filterSQL)

	params := make([]any, 0, len(filterParams)+1)
	params = append(params, query)
	params = append(params, filterParams...)

	stats := &SearchStats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+base, params...).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	var err error
	if stats.ByOrgao, err = s.buckets(ctx,
		"SELECT a.orgao_julgador, COUNT(*) AS cnt"+base+" GROUP BY a.orgao_julgador ORDER BY cnt DESC", params); err != nil {
		return nil, err
	}
	if stats.ByClasse, err = s.buckets(ctx,
		"SELECT a.sigla_classe, COUNT(*) AS cnt"+base+" GROUP BY a.sigla_classe ORDER BY cnt DESC LIMIT 10", params); err != nil {
		return nil, err
	}
	if stats.ByRelator, err = s.buckets(ctx,
		"SELECT a.ministro_relator, COUNT(*) AS cnt"+base+" GROUP BY a.ministro_relator ORDER BY cnt DESC LIMIT 10", params); err != nil {
		return nil, err
	}
	if stats.ByYear, err = s.buckets(ctx,
		"SELECT SUBSTR(a.data_decisao, 1, 4) AS ano, COUNT(*) AS cnt"+base+
			" AND a.data_decisao != '' GROUP BY ano ORDER BY ano DESC LIMIT 15", params); err != nil {
		return nil, err
	}
	return stats, nil
}

// SyncSummary is one dataset's marker summary for GlobalStats.
type SyncSummary struct {
	Dataset   string
	Resources int
	LastSync  string
}

// GlobalStats is the unfiltered whole-store report plus sync status.
type GlobalStats struct {
	Total    int
	ByOrgao  []Bucket // all judging bodies
	ByClasse []Bucket // top 20 class codes
	Datasets []SyncSummary
}

// GlobalStats aggregates over the entire store without a full-text
// match.
func (s *Store) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	stats := &GlobalStats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM acordaos").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	var err error
	if stats.ByOrgao, err = s.buckets(ctx,
		"SELECT orgao_julgador, COUNT(*) AS cnt FROM acordaos GROUP BY orgao_julgador ORDER BY cnt DESC", nil); err != nil {
		return nil, err
	}
	if stats.ByClasse, err = s.buckets(ctx,
		"SELECT sigla_classe, COUNT(*) AS cnt FROM acordaos GROUP BY sigla_classe ORDER BY cnt DESC LIMIT 20", nil); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT dataset, COUNT(*) AS resources, MAX(downloaded_at) AS last_sync FROM sync_state GROUP BY dataset ORDER BY dataset")
	if err != nil {
		return nil, fmt.Errorf("query sync summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var sum SyncSummary
		if err := rows.Scan(&sum.Dataset, &sum.Resources, &sum.LastSync); err != nil {
			return nil, fmt.Errorf("scan sync summary: %w", err)
		}
		stats.Datasets = append(stats.Datasets, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query sync summaries: %w", err)
	}
	return stats, nil
}

func (s *Store) buckets(ctx context.Context, query string, params []any) ([]Bucket, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Bucket
	for rows.Next() {
		var key sql.NullString
		var b Bucket
		if err := rows.Scan(&key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		b.Key = key.String
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan buckets: %w", err)
	}
	return out, nil
}

// aliased prefixes every column in recordColumns with the "a" table
// alias used by the search joins.
func aliased(columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = "a." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// scanRankedRecord reads recordColumns plus the trailing rank column.
func scanRankedRecord(sc scanner) (*record.Acordao, float64, error) {
	var a record.Acordao
	fields := recordFields(&a)

	cols := make([]sql.NullString, len(fields))
	var rank float64
	dest := make([]any, 0, len(fields)+2)
	dest = append(dest, &a.ID)
	for i := range cols {
		dest = append(dest, &cols[i])
	}
	dest = append(dest, &rank)
	if err := sc.Scan(dest...); err != nil {
		return nil, 0, err
	}
	for i, f := range fields {
		*f = cols[i].String
	}
	return &a, rank, nil
}
