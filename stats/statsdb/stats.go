package statsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/olebeck/stress/stats"
)

// Store keeps every run and the snapshots it reported in sqlite.
type Store struct {
	db *sql.DB
	id uuid.UUID
}

func NewStore(path string) (s *Store, err error) {
	s = &Store{}
	s.db, err = sql.Open("sqlite3", path+"?cache=shared")
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(1)

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions(
			id UUID,
			start DATETIME,
			latest_stat DATETIME,
			info BLOB,
			PRIMARY KEY(id)
		)
	`)
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("create sessions: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS stats(
			id UUID,
			dt DATETIME,
			label TEXT,
			data BLOB,
			PRIMARY KEY(id,dt,label)
		) WITHOUT ROWID;
	`)
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("create stats: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NewSession registers a run. Snapshots passed to Send are stored under it.
func (s *Store) NewSession(info stats.Info) error {
	if err := s.AddSession(info); err != nil {
		return err
	}
	s.id = info.ID
	return nil
}

// AddSession registers a run reported from elsewhere. Adding a known run is
// a no-op.
func (s *Store) AddSession(info stats.Info) error {
	sessionInfo, err := json.Marshal(info)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO sessions (id, start, info)
		VALUES ($1,$2,$3);
	`, info.ID, info.Start.UTC(), sessionInfo)
	return err
}

// Send stores a snapshot of the current session.
func (s *Store) Send(ctx context.Context, stat stats.Snapshot) error {
	if s.id == uuid.Nil {
		return fmt.Errorf("no session")
	}
	return s.HandleSubmit(ctx, s.id, stat)
}

func (s *Store) HandleSubmit(ctx context.Context, id uuid.UUID, stat stats.Snapshot) error {
	statData, err := json.Marshal(stat)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := stat.Time.UTC()
	_, err = tx.Exec(`
		INSERT INTO stats (id, dt, label, data) VALUES (?, ?, ?, ?);
	`, id, now, string(stat.Label), statData)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE sessions SET latest_stat = ? WHERE id = ?;
	`, now, id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetStats returns the sessions started within duration before now, newest
// first, unfinished ones before finished ones.
func (s *Store) GetStats(duration time.Duration, now time.Time) ([]*stats.Session, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.info, st.data
		FROM sessions s
		LEFT JOIN stats st ON s.id = st.id
		WHERE s.start >= $1
		ORDER BY s.id, st.dt ASC
	`, now.Add(-duration).UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*stats.Session
	var currentID uuid.UUID
	var session *stats.Session

	for rows.Next() {
		var id uuid.UUID
		var infoJSON []byte
		var statData sql.NullString

		if err = rows.Scan(&id, &infoJSON, &statData); err != nil {
			return nil, err
		}

		if session == nil || currentID != id {
			currentID = id
			session = &stats.Session{}
			if err := json.Unmarshal(infoJSON, &session.Info); err != nil {
				return nil, err
			}
			sessions = append(sessions, session)
		}

		if statData.Valid {
			var stat stats.Snapshot
			if err := json.Unmarshal([]byte(statData.String), &stat); err != nil {
				return nil, err
			}
			session.Stats = append(session.Stats, stat)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(sessions, func(a, b *stats.Session) int {
		if a.Finished() != b.Finished() {
			if a.Finished() {
				return 1
			}
			return -1
		}
		return -a.Info.Start.Compare(b.Info.Start)
	})

	return sessions, nil
}

func (s *Store) SessionCount() (int, error) {
	var val int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions;").Scan(&val); err != nil {
		return 0, err
	}
	return val, nil
}
