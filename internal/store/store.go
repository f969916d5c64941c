// Package store persists acórdão records in a single SQLite file with an
// FTS5 shadow index kept transactionally consistent with the primary
// table, plus per-resource sync markers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/juristools/stjsearch/internal/record"
)

// schemaSQL creates the primary table, the content-linked FTS5 index over
// the long-text fields, the triggers that mirror every write into the
// index inside the same transaction, and the sync-marker table. All
// statements are idempotent; Init runs this on every startup.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS acordaos (
	id TEXT PRIMARY KEY,
	numero_documento TEXT,
	numero_processo TEXT,
	numero_registro TEXT,
	sigla_classe TEXT,
	descricao_classe TEXT,
	classe_padronizada TEXT,
	orgao_julgador TEXT,
	ministro_relator TEXT,
	data_publicacao TEXT,
	ementa TEXT,
	tipo_decisao TEXT,
	data_decisao TEXT,
	decisao TEXT,
	jurisprudencia_citada TEXT,
	notas TEXT,
	informacoes_complementares TEXT,
	termos_auxiliares TEXT,
	tese_juridica TEXT,
	tema TEXT,
	referencias_legislativas TEXT,
	acordaos_similares TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS acordaos_fts USING fts5(
	ementa,
	decisao,
	informacoes_complementares,
	termos_auxiliares,
	notas,
	tese_juridica,
	content='acordaos',
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS acordaos_ai AFTER INSERT ON acordaos BEGIN
	INSERT INTO acordaos_fts(rowid, ementa, decisao, informacoes_complementares, termos_auxiliares, notas, tese_juridica)
	VALUES (new.rowid, new.ementa, new.decisao, new.informacoes_complementares, new.termos_auxiliares, new.notas, new.tese_juridica);
END;

CREATE TRIGGER IF NOT EXISTS acordaos_ad AFTER DELETE ON acordaos BEGIN
	INSERT INTO acordaos_fts(acordaos_fts, rowid, ementa, decisao, informacoes_complementares, termos_auxiliares, notas, tese_juridica)
	VALUES ('delete', old.rowid, old.ementa, old.decisao, old.informacoes_complementares, old.termos_auxiliares, old.notas, old.tese_juridica);
END;

CREATE TRIGGER IF NOT EXISTS acordaos_au AFTER UPDATE ON acordaos BEGIN
	INSERT INTO acordaos_fts(acordaos_fts, rowid, ementa, decisao, informacoes_complementares, termos_auxiliares, notas, tese_juridica)
	VALUES ('delete', old.rowid, old.ementa, old.decisao, old.informacoes_complementares, old.termos_auxiliares, old.notas, old.tese_juridica);
	INSERT INTO acordaos_fts(rowid, ementa, decisao, informacoes_complementares, termos_auxiliares, notas, tese_juridica)
	VALUES (new.rowid, new.ementa, new.decisao, new.informacoes_complementares, new.termos_auxiliares, new.notas, new.tese_juridica);
END;

CREATE TABLE IF NOT EXISTS sync_state (
	dataset TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	resource_name TEXT,
	downloaded_at TEXT DEFAULT (datetime('now')),
	PRIMARY KEY (dataset, resource_id)
);
`

// recordColumns is the canonical column order for both inserts and
// selects. Always select by name: databases migrated from older schema
// versions have their added columns at the end, so SELECT * ordering is
// not stable across files.
const recordColumns = `id, numero_documento, numero_processo, numero_registro,
	sigla_classe, descricao_classe, classe_padronizada, orgao_julgador,
	ministro_relator, data_publicacao, ementa, tipo_decisao, data_decisao,
	decisao, jurisprudencia_citada, notas, informacoes_complementares,
	termos_auxiliares, tese_juridica, tema, referencias_legislativas,
	acordaos_similares`

// Store wraps the SQLite database. Writes go through one connection at a
// time; a concurrent reader in another process is safe because every
// batch commits atomically under WAL.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database file and switches it to
// WAL mode for durability under concurrent readers.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single connection: the tool is single-writer and this sidesteps
	// SQLITE_BUSY between an open transaction and a sibling query.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Init creates the schema if absent and applies forward-only migrations.
// Safe to call on every startup.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.migrate(ctx)
}

// migrate adds columns introduced after the first release. SQLite has no
// ADD COLUMN IF NOT EXISTS, so the existing set is read first. Data is
// never dropped or rewritten.
func (s *Store) migrate(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(acordaos)")
	if err != nil {
		return fmt.Errorf("read table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read table info: %w", err)
	}

	migrations := []string{"numero_documento", "classe_padronizada"}
	for _, col := range migrations {
		if existing[col] {
			continue
		}
		s.log.Debug().Str("column", col).Msg("adding missing column")
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE acordaos ADD COLUMN %s TEXT", col)); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// UpsertBatch inserts or fully replaces each record by id inside one
// transaction. The FTS index is maintained by triggers in the same
// transaction, so a reader never observes a record without its index
// entry. An empty batch is a no-op, not an error.
func (s *Store) UpsertBatch(ctx context.Context, records []record.Acordao) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO acordaos (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		recordColumns))
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range records {
		a := &records[i]
		if _, err := stmt.ExecContext(ctx,
			a.ID, a.NumeroDocumento, a.NumeroProcesso, a.NumeroRegistro,
			a.SiglaClasse, a.DescricaoClasse, a.ClassePadronizada, a.OrgaoJulgador,
			a.MinistroRelator, a.DataPublicacao, a.Ementa, a.TipoDecisao,
			a.DataDecisao, a.Decisao, a.JurisprudenciaCitada, a.Notas,
			a.InformacoesComplementares, a.TermosAuxiliares, a.TeseJuridica,
			a.Tema, a.ReferenciasLegislativas, a.AcordaosSimilares,
		); err != nil {
			return 0, fmt.Errorf("upsert record %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(records), nil
}

// Delete removes one record by id; the FTS delete trigger fires in the
// same implicit transaction. Used only by explicit resets, never by
// sync.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM acordaos WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// GetByID fetches one record. The second return value reports presence.
func (s *Store) GetByID(ctx context.Context, id string) (*record.Acordao, bool, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM acordaos WHERE id = ?", recordColumns), id)
	a, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record %s: %w", id, err)
	}
	return a, true, nil
}

// MarkSynced records that a (dataset, resource) pair has been fully
// ingested. Overwrites an existing marker, refreshing its timestamp.
func (s *Store) MarkSynced(ctx context.Context, dataset, resourceID, resourceName string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sync_state (dataset, resource_id, resource_name) VALUES (?, ?, ?)",
		dataset, resourceID, resourceName)
	if err != nil {
		return fmt.Errorf("mark synced %s/%s: %w", dataset, resourceID, err)
	}
	return nil
}

// IsSynced reports whether a marker exists for the pair. Presence means
// the resource's records are already in the store, not that the upstream
// content is unchanged.
func (s *Store) IsSynced(ctx context.Context, dataset, resourceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM sync_state WHERE dataset = ? AND resource_id = ?",
		dataset, resourceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check sync marker %s/%s: %w", dataset, resourceID, err)
	}
	return true, nil
}

// ClearSyncMarkers deletes markers for one dataset, or all markers when
// dataset is empty. Ingested records are untouched: a forced re-sync
// overwrites records, it does not start from an empty store.
func (s *Store) ClearSyncMarkers(ctx context.Context, dataset string) error {
	var err error
	if dataset != "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM sync_state WHERE dataset = ?", dataset)
	} else {
		_, err = s.db.ExecContext(ctx, "DELETE FROM sync_state")
	}
	if err != nil {
		return fmt.Errorf("clear sync markers: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// recordFields returns pointers to every non-key field in recordColumns
// order (id excluded).
func recordFields(a *record.Acordao) []*string {
	return []*string{
		&a.NumeroDocumento, &a.NumeroProcesso, &a.NumeroRegistro,
		&a.SiglaClasse, &a.DescricaoClasse, &a.ClassePadronizada,
		&a.OrgaoJulgador, &a.MinistroRelator, &a.DataPublicacao,
		&a.Ementa, &a.TipoDecisao, &a.DataDecisao, &a.Decisao,
		&a.JurisprudenciaCitada, &a.Notas, &a.InformacoesComplementares,
		&a.TermosAuxiliares, &a.TeseJuridica, &a.Tema,
		&a.ReferenciasLegislativas, &a.AcordaosSimilares,
	}
}

// scanRecord reads one row in recordColumns order. Columns added by
// migration are NULL in rows written before the migration, so everything
// but the primary key goes through sql.NullString.
func scanRecord(sc scanner) (*record.Acordao, error) {
	var a record.Acordao
	fields := recordFields(&a)

	cols := make([]sql.NullString, len(fields))
	dest := make([]any, 0, len(fields)+1)
	dest = append(dest, &a.ID)
	for i := range cols {
		dest = append(dest, &cols[i])
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	for i, f := range fields {
		*f = cols[i].String
	}
	return &a, nil
}
