package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"emotive.arpa/agent/topics"
)

const historyFile = "history.db"

// History stores completed turns in sqlite.
type History struct {
	db *sql.DB
}

// NewHistory opens (or creates) the history database in dataDir.
func NewHistory(dataDir string) (*History, error) {
	dbPath := filepath.Join(dataDir, historyFile)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return h, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		topic TEXT NOT NULL,
		keyword TEXT NOT NULL,
		emotion TEXT NOT NULL,
		reply TEXT NOT NULL,
		recorded TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`
	if _, err := h.db.Exec(query); err != nil {
		return err
	}
	_, err := h.db.Exec(`CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns (created_at);`)
	return err
}

// Append stores a completed turn.
func (h *History) Append(ctx context.Context, r Result) error {
	query := `
	INSERT INTO turns (id, input, topic, keyword, emotion, reply, recorded, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := h.db.ExecContext(ctx, query,
		r.ID, r.Input, r.Topic, r.Keyword, string(r.Emotion), r.Reply,
		strings.Join(r.Recorded, ","), r.CreatedAt,
	)
	return err
}

// Recent returns up to limit turns, oldest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
	SELECT id, input, topic, keyword, emotion, reply, recorded, created_at
	FROM turns
	ORDER BY created_at DESC
	LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			emotion  string
			recorded string
		)
		if err := rows.Scan(&r.ID, &r.Input, &r.Topic, &r.Keyword, &emotion, &r.Reply, &recorded, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Emotion = topics.Emotion(emotion)
		if recorded != "" {
			r.Recorded = strings.Split(recorded, ",")
		}
		results = append(results, r)
	}

	// Chronological order (oldest first)
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, rows.Err()
}
