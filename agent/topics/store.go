package topics

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const storeFile = "topics.db"

// Learned is a topic recorded at runtime.
type Learned struct {
	Emotion   Emotion
	Topic     string
	CreatedAt time.Time
}

// Store persists learned topics so they survive restarts.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the topic database in dataDir.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, storeFile)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS learned_topics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		emotion TEXT NOT NULL,
		topic TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(query)
	return err
}

// Save stores a learned topic. Saving a topic twice keeps the first owner.
func (s *Store) Save(ctx context.Context, l Learned) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO learned_topics (emotion, topic, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(topic) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query, string(l.Emotion), l.Topic, l.CreatedAt)
	return err
}

// Load returns learned topics oldest first.
func (s *Store) Load(ctx context.Context) ([]Learned, error) {
	query := `
	SELECT emotion, topic, created_at
	FROM learned_topics
	ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var learned []Learned
	for rows.Next() {
		var l Learned
		var emotion string
		if err := rows.Scan(&emotion, &l.Topic, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Emotion = Emotion(emotion)
		learned = append(learned, l)
	}
	return learned, rows.Err()
}

// Restore records every learned topic into t and returns how many were applied.
// Topics whose emotion no longer exists in t are skipped.
func (s *Store) Restore(ctx context.Context, t *Table) (int, error) {
	learned, err := s.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load learned topics: %w", err)
	}
	applied := 0
	for _, l := range learned {
		if t.Record(l.Emotion, l.Topic) {
			applied++
		}
	}
	return applied, nil
}
