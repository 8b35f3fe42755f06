// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// SQLiteStore persists records in SQLite. Vectors are stored alongside the
// row as JSON; similarity is computed in process, so it suits single-agent
// deployments rather than large corpora.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "open sqlite database", err).
			WithContext("path", path)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing handle and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureMemorySchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "ensure memory schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMemory inserts a record, assigning an id when none is set.
func (s *SQLiteStore) SaveMemory(ctx context.Context, m core.Memory) (core.ID, error) {
	if m.ID == core.ZeroID {
		m.ID = core.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	actions, err := encodeJSON(m.Content.Actions)
	if err != nil {
		return core.ZeroID, err
	}
	data, err := encodeJSON(m.Content.Data)
	if err != nil {
		return core.ZeroID, err
	}
	metadata, err := encodeJSON(m.Metadata)
	if err != nil {
		return core.ZeroID, err
	}
	embedding, err := encodeJSON(m.Embedding)
	if err != nil {
		return core.ZeroID, err
	}

	inReplyTo := ""
	if m.Content.InReplyTo != nil {
		inReplyTo = m.Content.InReplyTo.String()
	}
	agentID := ""
	if m.AgentID != core.ZeroID {
		agentID = m.AgentID.String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ZeroID, errors.New(errors.CodeStorage, "begin save", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM memories WHERE id = ?`, m.ID.String()).Scan(&exists)
	if err != nil {
		return core.ZeroID, errors.New(errors.CodeStorage, "check existing memory", err)
	}
	if exists > 0 {
		return core.ZeroID, errors.Newf(errors.CodeConflict, "memory %s already exists", m.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, entity_id, agent_id, room_id, text, source, actions_json,
			in_reply_to, data_json, metadata_json, embedding_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID.String(),
		m.EntityID.String(),
		agentID,
		m.RoomID.String(),
		m.Content.Text,
		m.Content.Source,
		actions,
		inReplyTo,
		data,
		metadata,
		embedding,
		m.CreatedAt.UTC(),
	)
	if err != nil {
		return core.ZeroID, errors.New(errors.CodeStorage, "insert memory", err)
	}
	if err := tx.Commit(); err != nil {
		return core.ZeroID, errors.New(errors.CodeStorage, "commit save", err)
	}
	return m.ID, nil
}

// GetMemory returns the record with the given id.
func (s *SQLiteStore) GetMemory(ctx context.Context, id core.ID) (*core.Memory, error) {
	row := s.db.QueryRowContext(ctx, selectMemoryColumns+` WHERE id = ?`, id.String())
	m, err := scanMemory(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf(errors.CodeNotFound, "memory %s not found", id)
		}
		return nil, errors.New(errors.CodeStorage, "load memory", err)
	}
	return &m, nil
}

// GetMemories returns matching records newest first.
func (s *SQLiteStore) GetMemories(ctx context.Context, q core.MemoryQuery) ([]core.Memory, error) {
	query := selectMemoryColumns
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if q.RoomID != core.ZeroID {
		addFilter("room_id = ?", q.RoomID.String())
	}
	if q.EntityID != core.ZeroID {
		addFilter("entity_id = ?", q.EntityID.String())
	}
	if !q.Before.IsZero() {
		addFilter("created_at < ?", q.Before.UTC())
	}
	query += where + " ORDER BY created_at DESC, rowid DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query memories", err)
	}
	defer rows.Close()

	var out []core.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, errors.New(errors.CodeStorage, "scan memory", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate memories", err)
	}
	return out, nil
}

// SearchMemories loads candidate rows and ranks them by cosine similarity.
func (s *SQLiteStore) SearchMemories(ctx context.Context, embedding []float32, f core.SearchFilter) ([]core.MemoryMatch, error) {
	if len(embedding) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "search embedding must not be empty", nil)
	}

	query := selectMemoryColumns + ` WHERE embedding_json != ''`
	var args []any
	if f.RoomID != core.ZeroID {
		query += ` AND room_id = ?`
		args = append(args, f.RoomID.String())
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query embeddings", err)
	}
	defer rows.Close()

	var matches []core.MemoryMatch
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, errors.New(errors.CodeStorage, "scan memory", err)
		}
		score := Cosine(embedding, m.Embedding)
		if score < f.MinScore {
			continue
		}
		matches = append(matches, core.MemoryMatch{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate embeddings", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if f.Limit > 0 && len(matches) > f.Limit {
		matches = matches[:f.Limit]
	}
	return matches, nil
}

// CountMemories counts records, scoped to a room when one is given.
func (s *SQLiteStore) CountMemories(ctx context.Context, roomID core.ID) (int, error) {
	query := `SELECT COUNT(1) FROM memories`
	var args []any
	if roomID != core.ZeroID {
		query += ` WHERE room_id = ?`
		args = append(args, roomID.String())
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.New(errors.CodeStorage, "count memories", err)
	}
	return n, nil
}

// DeleteMemory removes one record.
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id core.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id.String())
	if err != nil {
		return errors.New(errors.CodeStorage, "delete memory", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.New(errors.CodeStorage, "delete memory", err)
	}
	if n == 0 {
		return errors.Newf(errors.CodeNotFound, "memory %s not found", id)
	}
	return nil
}

// DeleteMemoriesBefore prunes records older than the cutoff.
func (s *SQLiteStore) DeleteMemoriesBefore(ctx context.Context, roomID core.ID, before time.Time) (int, error) {
	query := `DELETE FROM memories WHERE created_at < ?`
	args := []any{before.UTC()}
	if roomID != core.ZeroID {
		query += ` AND room_id = ?`
		args = append(args, roomID.String())
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.New(errors.CodeStorage, "prune memories", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.New(errors.CodeStorage, "prune memories", err)
	}
	return int(n), nil
}

const selectMemoryColumns = `
	SELECT id, entity_id, agent_id, room_id, text, source, actions_json,
	       in_reply_to, data_json, metadata_json, embedding_json, created_at
	FROM memories
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (core.Memory, error) {
	var (
		m       core.Memory
		id      string
		entity  string
		agent   string
		room    string
		actions string
		reply   string
		data    string
		meta    string
		embed   string
		created time.Time
	)
	err := row.Scan(&id, &entity, &agent, &room, &m.Content.Text, &m.Content.Source,
		&actions, &reply, &data, &meta, &embed, &created)
	if err != nil {
		return core.Memory{}, err
	}

	if m.ID, err = core.ParseID(id); err != nil {
		return core.Memory{}, err
	}
	if m.EntityID, err = core.ParseID(entity); err != nil {
		return core.Memory{}, err
	}
	if m.RoomID, err = core.ParseID(room); err != nil {
		return core.Memory{}, err
	}
	if agent != "" {
		if m.AgentID, err = core.ParseID(agent); err != nil {
			return core.Memory{}, err
		}
	}
	if reply != "" {
		rid, err := core.ParseID(reply)
		if err != nil {
			return core.Memory{}, err
		}
		m.Content.InReplyTo = &rid
	}
	if err := decodeJSON(actions, &m.Content.Actions); err != nil {
		return core.Memory{}, err
	}
	if err := decodeJSON(data, &m.Content.Data); err != nil {
		return core.Memory{}, err
	}
	if err := decodeJSON(meta, &m.Metadata); err != nil {
		return core.Memory{}, err
	}
	if err := decodeJSON(embed, &m.Embedding); err != nil {
		return core.Memory{}, err
	}
	m.CreatedAt = created.UTC()
	return m, nil
}

func ensureMemorySchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL,
			agent_id TEXT,
			room_id TEXT NOT NULL,
			text TEXT,
			source TEXT,
			actions_json TEXT,
			in_reply_to TEXT,
			data_json TEXT,
			metadata_json TEXT,
			embedding_json TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_room ON memories(room_id);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`)
	return err
}

func encodeJSON(v any) (string, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return "", nil
		}
	case []float32:
		if len(val) == 0 {
			return "", nil
		}
	case map[string]any:
		if len(val) == 0 {
			return "", nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.New(errors.CodeStorage, "encode memory field", err)
	}
	return string(raw), nil
}

func decodeJSON(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
