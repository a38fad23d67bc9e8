package bayesopt

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the Bayesian optimiser's local observation history, kept in
// sqlite since it is small, process-local, and never shared across
// instances (§2 Component L).
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("bayesopt: failed to open store at %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		params TEXT NOT NULL,
		value REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return nil, fmt.Errorf("bayesopt: failed to create observations table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save persists one observation.
func (s *Store) Save(obs Observation) error {
	raw, err := json.Marshal(obs.Params)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO observations (params, value) VALUES (?, ?)`, string(raw), obs.Value)
	return err
}

// LoadAll returns every observation recorded so far, oldest first.
func (s *Store) LoadAll() ([]Observation, error) {
	rows, err := s.db.Query(`SELECT params, value FROM observations ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var raw string
		var value float64
		if err := rows.Scan(&raw, &value); err != nil {
			return nil, err
		}
		var params []float64
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, err
		}
		out = append(out, Observation{Params: params, Value: value})
	}
	return out, rows.Err()
}
