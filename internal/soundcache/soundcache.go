// Package soundcache persists resolved sound theme lookups in SQLite so
// repeated plays skip the theme directory walk.
package soundcache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/llehouerou/eventsound/internal/db"
)

const (
	appName    = "eventsound"
	dbFileName = "lookup.db"

	DefaultTTL = 30 * 24 * time.Hour
)

// Key identifies a lookup.
type Key struct {
	Theme   string
	Profile string
	Locale  string
	EventID string
}

// Entry is a cached lookup result.
type Entry struct {
	Key
	Path      string
	Resolved  string // theme the file came from, empty when unthemed
	CreatedAt time.Time
	UsedAt    time.Time
}

// Store is the lookup cache.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long unused entries survive Prune.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultPath returns $XDG_CACHE_HOME/eventsound/lookup.db.
func DefaultPath() (string, error) {
	return xdg.CacheFile(filepath.Join(appName, dbFileName))
}

// Open opens or creates the cache at path. An empty path means DefaultPath.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	if err := initSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	s := &Store{
		db:  conn,
		ttl: DefaultTTL,
		now: time.Now,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached entry for k. Entries whose file has vanished are
// dropped and reported as a miss.
func (s *Store) Get(ctx context.Context, k Key) (Entry, bool, error) {
	var (
		e        Entry
		resolved sql.NullString
		created  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT path, resolved_theme, created_at
		FROM lookups
		WHERE theme = ? AND profile = ? AND locale = ? AND event_id = ?
	`, k.Theme, k.Profile, k.Locale, k.EventID).Scan(&e.Path, &resolved, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	if _, err := os.Stat(e.Path); err != nil {
		s.log.Debug().Str("path", e.Path).Msg("cached sound vanished")
		return Entry{}, false, s.Delete(ctx, k)
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		UPDATE lookups SET used_at = ?
		WHERE theme = ? AND profile = ? AND locale = ? AND event_id = ?
	`, now.Unix(), k.Theme, k.Profile, k.Locale, k.EventID); err != nil {
		return Entry{}, false, err
	}

	e.Key = k
	e.Resolved = db.NullStringValue(resolved)
	e.CreatedAt = db.UnixTime(created)
	e.UsedAt = db.UnixTime(now.Unix())
	return e, true, nil
}

// Put stores or replaces an entry.
func (s *Store) Put(ctx context.Context, e Entry) error {
	now := s.now().Unix()
	var resolved sql.NullString
	if e.Resolved != "" {
		resolved = sql.NullString{String: e.Resolved, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lookups (theme, profile, locale, event_id, path, resolved_theme, created_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (theme, profile, locale, event_id) DO UPDATE SET
			path = excluded.path,
			resolved_theme = excluded.resolved_theme,
			used_at = excluded.used_at
	`, e.Theme, e.Profile, e.Locale, e.EventID, e.Path, resolved, now, now)
	return err
}

// Delete removes the entry for k, if any.
func (s *Store) Delete(ctx context.Context, k Key) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM lookups
		WHERE theme = ? AND profile = ? AND locale = ? AND event_id = ?
	`, k.Theme, k.Profile, k.Locale, k.EventID)
	return err
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lookups`)
	return err
}

// Len returns the number of entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookups`).Scan(&n)
	return n, err
}

// Prune drops entries unused for longer than the TTL and entries whose file
// no longer exists. It returns the number of entries removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl).Unix()
	removed := 0

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM lookups WHERE used_at < ?`, cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed += int(n)

		rows, err := tx.QueryContext(ctx, `SELECT rowid, path FROM lookups`)
		if err != nil {
			return err
		}
		var gone []int64
		for rows.Next() {
			var (
				id   int64
				path string
			)
			if err := rows.Scan(&id, &path); err != nil {
				rows.Close()
				return err
			}
			if _, err := os.Stat(path); err != nil {
				gone = append(gone, id)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range gone {
			if _, err := tx.ExecContext(ctx, `DELETE FROM lookups WHERE rowid = ?`, id); err != nil {
				return err
			}
		}
		removed += len(gone)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug().Int("removed", removed).Msg("lookup cache pruned")
	return removed, nil
}
