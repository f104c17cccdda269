package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"vocald/pkg/types"
)

// MetaCache persists provider-supplied metadata for downloaded models so
// listings keep their descriptive fields when the provider is unreachable.
type MetaCache struct {
	db *sql.DB
}

// OpenMetaCache creates or opens dir/metadata.db with WAL mode.
func OpenMetaCache(dir string) (*MetaCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	dsn := filepath.Join(dir, "metadata.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &MetaCache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (c *MetaCache) migrate() error {
	_, err := c.db.Exec(`CREATE TABLE IF NOT EXISTS model_meta (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL DEFAULT '',
		provider       TEXT NOT NULL DEFAULT '',
		task           TEXT NOT NULL DEFAULT '',
		backend        TEXT NOT NULL DEFAULT '',
		parameters     TEXT NOT NULL DEFAULT '',
		languages      TEXT NOT NULL DEFAULT '[]',
		size_bytes     INTEGER NOT NULL DEFAULT 0,
		size_readable  TEXT NOT NULL DEFAULT '',
		rec_vram_mb    INTEGER NOT NULL DEFAULT 0,
		downloaded_at  INTEGER NOT NULL DEFAULT 0
	)`)
	return err
}

// Put upserts metadata for one model id.
func (c *MetaCache) Put(m types.ModelInfo) error {
	langs, err := json.Marshal(m.Languages)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`INSERT INTO model_meta
		(id, name, provider, task, backend, parameters, languages, size_bytes, size_readable, rec_vram_mb, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		name=excluded.name, provider=excluded.provider, task=excluded.task,
		backend=excluded.backend, parameters=excluded.parameters,
		languages=excluded.languages, size_bytes=excluded.size_bytes,
		size_readable=excluded.size_readable, rec_vram_mb=excluded.rec_vram_mb,
		downloaded_at=excluded.downloaded_at`,
		m.ID, m.Name, m.Provider, string(m.Task), string(m.Backend), m.Parameters,
		string(langs), m.SizeBytes, m.SizeReadable, m.RecommendedVRAMMB, m.DownloadedAt)
	return err
}

// Get returns cached metadata for id; the bool is false on a miss.
func (c *MetaCache) Get(id string) (types.ModelInfo, bool) {
	var m types.ModelInfo
	var task, backend, langs string
	row := c.db.QueryRow(`SELECT id, name, provider, task, backend, parameters,
		languages, size_bytes, size_readable, rec_vram_mb, downloaded_at
		FROM model_meta WHERE id = ?`, id)
	err := row.Scan(&m.ID, &m.Name, &m.Provider, &task, &backend, &m.Parameters,
		&langs, &m.SizeBytes, &m.SizeReadable, &m.RecommendedVRAMMB, &m.DownloadedAt)
	if err != nil {
		return types.ModelInfo{}, false
	}
	m.Task = types.Task(task)
	m.Backend = types.Backend(backend)
	_ = json.Unmarshal([]byte(langs), &m.Languages)
	return m, true
}

// Delete removes cached metadata for id. Missing rows are not an error.
func (c *MetaCache) Delete(id string) error {
	_, err := c.db.Exec(`DELETE FROM model_meta WHERE id = ?`, id)
	return err
}

// Close cleanly shuts down the database.
func (c *MetaCache) Close() error { return c.db.Close() }
