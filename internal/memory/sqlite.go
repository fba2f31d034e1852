package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pacts/internal/logging"
	"pacts/internal/types"
)

// Store is the durable tier: SQLite, one connection, WAL. It backs the
// selector cache, the heal-history ledger, and run records.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// OpenStore initializes the SQLite database at path (":memory:" works for
// tests).
func OpenStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenStore")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// NORMAL is safe under WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryStore).Debug("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Get(logging.CategoryStore).Info("store ready at %s", path)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS selector_cache (
			url_pattern  TEXT NOT NULL,
			element_name TEXT NOT NULL,
			action       TEXT NOT NULL,
			selector     TEXT NOT NULL,
			strategy     TEXT NOT NULL,
			score        REAL NOT NULL,
			stable       INTEGER NOT NULL,
			epoch        INTEGER NOT NULL,
			created_at   INTEGER NOT NULL,
			last_ok_at   INTEGER NOT NULL,
			hit_count    INTEGER NOT NULL DEFAULT 0,
			miss_count   INTEGER NOT NULL DEFAULT 0,
			dom_hash     TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (url_pattern, element_name, action)
		)`,
		`CREATE TABLE IF NOT EXISTS heal_history (
			url_pattern   TEXT NOT NULL,
			element_name  TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_used_at  INTEGER NOT NULL,
			PRIMARY KEY (url_pattern, element_name, strategy)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id             TEXT PRIMARY KEY,
			req_id         TEXT NOT NULL,
			url            TEXT NOT NULL,
			plan_hash      TEXT NOT NULL,
			verdict        TEXT NOT NULL,
			rca_class      TEXT NOT NULL DEFAULT '',
			rca_confidence REAL NOT NULL DEFAULT 0,
			heal_rounds    INTEGER NOT NULL DEFAULT 0,
			drift_events   INTEGER NOT NULL DEFAULT 0,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id       TEXT NOT NULL,
			step_idx     INTEGER NOT NULL,
			element_name TEXT NOT NULL,
			action       TEXT NOT NULL,
			value        TEXT NOT NULL DEFAULT '',
			selector     TEXT NOT NULL DEFAULT '',
			strategy     TEXT NOT NULL DEFAULT '',
			outcome      TEXT NOT NULL DEFAULT '',
			failure      TEXT NOT NULL DEFAULT '',
			ms           INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, step_idx)
		)`,
		`CREATE TABLE IF NOT EXISTS artifacts (
			id           TEXT PRIMARY KEY,
			run_id       TEXT NOT NULL,
			kind         TEXT NOT NULL,
			path         TEXT NOT NULL,
			content_hash TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_req ON runs(req_id)`,
		`CREATE INDEX IF NOT EXISTS idx_heal_key ON heal_history(url_pattern, element_name)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES('epoch', '0')`)
	return err
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Epoch returns the current cache epoch. Entries written under an older
// epoch are invisible to lookups.
func (s *Store) Epoch() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochLocked()
}

func (s *Store) epochLocked() (int, error) {
	var raw string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'epoch'`).Scan(&raw); err != nil {
		return 0, fmt.Errorf("read epoch: %w", err)
	}
	epoch, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("malformed epoch %q: %w", raw, err)
	}
	return epoch, nil
}

// BumpEpoch invalidates every cached selector at once by advancing the
// epoch. Stale rows stay on disk for inspection until the next purge.
func (s *Store) BumpEpoch() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	epoch, err := s.epochLocked()
	if err != nil {
		return 0, err
	}
	epoch++
	if _, err := s.db.Exec(`UPDATE meta SET value = ? WHERE key = 'epoch'`, strconv.Itoa(epoch)); err != nil {
		return 0, fmt.Errorf("bump epoch: %w", err)
	}
	logging.Get(logging.CategoryCache).Info("cache epoch bumped to %d", epoch)
	return epoch, nil
}

// GetSelector loads a cache entry for the current epoch.
func (s *Store) GetSelector(key types.CacheKey) (types.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	epoch, err := s.epochLocked()
	if err != nil {
		return types.CacheEntry{}, false, err
	}

	row := s.db.QueryRow(`
		SELECT selector, strategy, score, stable, epoch, created_at, last_ok_at, hit_count, miss_count, dom_hash
		FROM selector_cache
		WHERE url_pattern = ? AND element_name = ? AND action = ? AND epoch = ?`,
		key.URLPattern, key.ElementName, string(key.Action), epoch)

	var (
		entry           types.CacheEntry
		stable          int
		createdAt, okAt int64
	)
	entry.Key = key
	err = row.Scan(&entry.Selector, &entry.Strategy, &entry.Score, &stable, &entry.Epoch,
		&createdAt, &okAt, &entry.HitCount, &entry.MissCount, &entry.DomHashSnapshot)
	if err == sql.ErrNoRows {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("get selector: %w", err)
	}
	entry.Stable = stable != 0
	entry.CreatedAt = time.Unix(createdAt, 0).UTC()
	entry.LastOkAt = time.Unix(okAt, 0).UTC()
	return entry, true, nil
}

// PutSelector upserts a cache entry. Admission policy (stability, score
// comparison) is the Cache's job; the store writes what it is given.
func (s *Store) PutSelector(entry types.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stable := 0
	if entry.Stable {
		stable = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO selector_cache
			(url_pattern, element_name, action, selector, strategy, score, stable, epoch, created_at, last_ok_at, hit_count, miss_count, dom_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_pattern, element_name, action) DO UPDATE SET
			selector = excluded.selector,
			strategy = excluded.strategy,
			score = excluded.score,
			stable = excluded.stable,
			epoch = excluded.epoch,
			last_ok_at = excluded.last_ok_at,
			dom_hash = excluded.dom_hash`,
		entry.Key.URLPattern, entry.Key.ElementName, string(entry.Key.Action),
		entry.Selector, string(entry.Strategy), entry.Score, stable, entry.Epoch,
		entry.CreatedAt.Unix(), entry.LastOkAt.Unix(), entry.HitCount, entry.MissCount,
		entry.DomHashSnapshot)
	if err != nil {
		return fmt.Errorf("put selector: %w", err)
	}
	return nil
}

// TouchSelector updates hit/miss counters after a cache probe.
func (s *Store) TouchSelector(key types.CacheKey, hit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hit {
		_, err := s.db.Exec(`UPDATE selector_cache SET hit_count = hit_count + 1, last_ok_at = ?
			WHERE url_pattern = ? AND element_name = ? AND action = ?`,
			time.Now().Unix(), key.URLPattern, key.ElementName, string(key.Action))
		return err
	}
	_, err := s.db.Exec(`UPDATE selector_cache SET miss_count = miss_count + 1
		WHERE url_pattern = ? AND element_name = ? AND action = ?`,
		key.URLPattern, key.ElementName, string(key.Action))
	return err
}

// DeleteSelector evicts a single cache entry.
func (s *Store) DeleteSelector(key types.CacheKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM selector_cache WHERE url_pattern = ? AND element_name = ? AND action = ?`,
		key.URLPattern, key.ElementName, string(key.Action))
	return err
}

// PurgeSelectors removes cache rows. An empty pattern clears everything.
func (s *Store) PurgeSelectors(urlPattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if urlPattern == "" {
		res, err = s.db.Exec(`DELETE FROM selector_cache`)
	} else {
		res, err = s.db.Exec(`DELETE FROM selector_cache WHERE url_pattern = ?`, urlPattern)
	}
	if err != nil {
		return 0, fmt.Errorf("purge selectors: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordHealOutcome bumps the ledger counters for one strategy attempt.
func (s *Store) RecordHealOutcome(urlPattern, elementName string, strategy types.Strategy, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	succ, fail := 0, 1
	if success {
		succ, fail = 1, 0
	}
	_, err := s.db.Exec(`
		INSERT INTO heal_history (url_pattern, element_name, strategy, success_count, failure_count, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_pattern, element_name, strategy) DO UPDATE SET
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			last_used_at = excluded.last_used_at`,
		urlPattern, elementName, string(strategy), succ, fail, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record heal outcome: %w", err)
	}
	return nil
}

// HealStats loads ledger rows for one element, element-level first and
// falling back to every strategy seen on the page when the element has no
// history of its own.
func (s *Store) HealStats(urlPattern, elementName string) ([]types.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT url_pattern, element_name, strategy, success_count, failure_count, last_used_at
		FROM heal_history
		WHERE url_pattern = ? AND element_name = ?`, urlPattern, elementName)
	if err != nil {
		return nil, fmt.Errorf("heal stats: %w", err)
	}
	defer rows.Close()

	var out []types.LedgerEntry
	for rows.Next() {
		var e types.LedgerEntry
		var lastUsed int64
		if err := rows.Scan(&e.URLPattern, &e.ElementName, &e.Strategy, &e.SuccessCount, &e.FailureCount, &lastUsed); err != nil {
			return nil, err
		}
		e.LastUsedAt = time.Unix(lastUsed, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveRun persists the run summary and its per-step outcomes. Secret step
// values must already be redacted by the caller.
func (s *Store) SaveRun(rec types.RunRecord, url string, driftEvents int, steps []types.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO runs
			(id, req_id, url, plan_hash, verdict, rca_class, rca_confidence, heal_rounds, drift_events, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ReqID, url, rec.PlanHash, string(rec.Verdict), string(rec.RCAClass),
		rec.RCAConfidence, rec.HealRounds, driftEvents, rec.StartedAt.Unix(), rec.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	for i, st := range steps {
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO run_steps
				(run_id, step_idx, element_name, action, value, selector, strategy, outcome, failure, ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, st.Intent.ElementName, string(st.Intent.Action), st.Intent.Value,
			st.Selector, string(st.Strategy), st.Outcome, string(st.Failure), st.Ms)
		if err != nil {
			return fmt.Errorf("save run step %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// SaveArtifact records a run by-product (screenshot, generated test).
func (s *Store) SaveArtifact(a types.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO artifacts (id, run_id, kind, path, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.Kind, a.Path, a.Hash, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// LoadRun reads back one run summary by id.
func (s *Store) LoadRun(id string) (types.RunRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, req_id, plan_hash, verdict, rca_class, rca_confidence, heal_rounds, started_at, finished_at
		FROM runs WHERE id = ?`, id)

	var rec types.RunRecord
	var started, finished int64
	err := row.Scan(&rec.ID, &rec.ReqID, &rec.PlanHash, &rec.Verdict, &rec.RCAClass,
		&rec.RCAConfidence, &rec.HealRounds, &started, &finished)
	if err == sql.ErrNoRows {
		return types.RunRecord{}, false, nil
	}
	if err != nil {
		return types.RunRecord{}, false, err
	}
	rec.StartedAt = time.Unix(started, 0).UTC()
	rec.FinishedAt = time.Unix(finished, 0).UTC()
	rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)
	return rec, true, nil
}
