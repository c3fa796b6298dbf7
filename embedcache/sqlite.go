package embedcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/datar-psa/goanchor/api"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	key    TEXT PRIMARY KEY,
	model  TEXT NOT NULL,
	text   TEXT NOT NULL,
	dim    INTEGER NOT NULL,
	vector BLOB NOT NULL
);`

// SQLiteStore persists vectors in a SQLite database file so they survive restarts
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite cache at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite cache path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening embedding cache %s: %w", path, err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embedding cache schema in %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, model string, texts []string) (map[string]api.Vector, error) {
	out := make(map[string]api.Vector, len(texts))
	for _, t := range texts {
		var storedModel, storedText string
		var blob []byte
		err := s.db.QueryRowContext(ctx,
			`SELECT model, text, vector FROM embeddings WHERE key = ?`, storeKey(model, t),
		).Scan(&storedModel, &storedText, &blob)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read cached embedding: %w", err)
		}
		if storedModel != model || storedText != t {
			continue
		}
		v, err := decodeVector(blob)
		if err != nil {
			return nil, err
		}
		out[t] = v
	}
	return out, nil
}

// Put implements Store
func (s *SQLiteStore) Put(ctx context.Context, model string, vectors map[string]api.Vector) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO embeddings (key, model, text, dim, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for t, v := range vectors {
		blob, err := encodeVector(v)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, storeKey(model, t), model, t, len(v), blob); err != nil {
			return fmt.Errorf("failed to cache embedding: %w", err)
		}
	}
	return tx.Commit()
}

// Clear implements Store
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("failed to clear embedding cache: %w", err)
	}
	return nil
}

// storeKey derives a fixed-size key for model and text
func storeKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func encodeVector(v api.Vector) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, []float64(v)); err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) (api.Vector, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("cached embedding is corrupt: %d bytes", len(blob))
	}
	v := make([]float64, len(blob)/8)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return v, nil
}

var _ Store = (*SQLiteStore)(nil)
