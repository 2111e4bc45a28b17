package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nimbus-tasks/assistant/internal/model"
)

// SQLStore implements Store on database/sql. The statements are written in
// the subset of SQL shared by SQLite and MySQL.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

// --- conversations ---

// CreateConversation inserts a new conversation.
func (s *SQLStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.clock()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	const stmt = `INSERT INTO conversations (id, owner_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		conv.ID, conv.OwnerID, nullString(conv.Title), toMicros(conv.CreatedAt), toMicros(conv.UpdatedAt),
	); err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// GetConversation returns the conversation if it is owned by ownerID.
func (s *SQLStore) GetConversation(ctx context.Context, id, ownerID string) (*model.Conversation, error) {
	const query = `SELECT id, owner_id, title, created_at, updated_at FROM conversations WHERE id = ? AND owner_id = ?`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns a page of the owner's conversations, most
// recently active first, together with the total count.
func (s *SQLStore) ListConversations(ctx context.Context, ownerID string, limit, offset int) ([]model.Conversation, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE owner_id = ?`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, title, created_at, updated_at
		FROM conversations WHERE owner_id = ?
		ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return convs, total, nil
}

// RenameConversation sets the conversation title.
func (s *SQLStore) RenameConversation(ctx context.Context, id, ownerID, title string) (*model.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		title, toMicros(s.clock()), id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to rename conversation: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id, ownerID)
}

// DeleteConversation removes the conversation and its messages.
func (s *SQLStore) DeleteConversation(ctx context.Context, id, ownerID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_id = ? AND owner_id = ?`, id, ownerID,
		); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		return expectOneRow(res)
	})
}

// --- messages ---

// AppendMessage stores msg after checking that the conversation belongs to
// msg.OwnerID, and bumps the conversation's updated_at.
func (s *SQLStore) AppendMessage(ctx context.Context, msg *model.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM conversations WHERE id = ? AND owner_id = ?`,
			msg.ConversationID, msg.OwnerID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to verify conversation: %w", err)
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO messages
			(id, conversation_id, owner_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.OwnerID, string(msg.Role), msg.Content, toMicros(msg.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message sequence: %w", err)
		}
		msg.Seq = seq

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ? AND owner_id = ?`,
			toMicros(msg.CreatedAt), msg.ConversationID, msg.OwnerID,
		); err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		return nil
	})
}

// ListMessages returns the conversation's messages oldest first. When limit
// is positive only the newest limit messages are returned.
func (s *SQLStore) ListMessages(ctx context.Context, conversationID, ownerID string, limit int) ([]model.Message, error) {
	const base = `SELECT m.seq, m.id, m.conversation_id, m.owner_id, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id AND c.owner_id = m.owner_id
		WHERE m.conversation_id = ? AND m.owner_id = ?`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `SELECT seq, id, conversation_id, owner_id, role, content, created_at FROM (`+
			base+` ORDER BY m.created_at DESC, m.seq DESC LIMIT ?) recent
			ORDER BY created_at ASC, seq ASC`, conversationID, ownerID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY m.created_at ASC, m.seq ASC`, conversationID, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var (
			msg       model.Message
			role      string
			createdAt int64
		)
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.OwnerID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = fromMicros(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// --- tasks ---

const taskColumns = `id, owner_id, title, is_completed, created_at, updated_at`

// CreateTask inserts a pending task. The title must already be validated.
func (s *SQLStore) CreateTask(ctx context.Context, ownerID, title string) (*model.Task, error) {
	now := s.clock()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (owner_id, title, is_completed, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		ownerID, title, toMicros(now), toMicros(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read task id: %w", err)
	}
	return &model.Task{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: fromMicros(toMicros(now)),
		UpdatedAt: fromMicros(toMicros(now)),
	}, nil
}

// GetTask returns the task if it is owned by ownerID.
func (s *SQLStore) GetTask(ctx context.Context, id int64, ownerID string) (*model.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return task, nil
}

// ListTasks returns the owner's tasks, newest first.
func (s *SQLStore) ListTasks(ctx context.Context, ownerID string, status model.TaskStatus, limit, offset int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`
	args := []any{ownerID}

	switch status {
	case model.TaskStatusPending:
		query += ` AND is_completed = 0`
	case model.TaskStatusCompleted:
		query += ` AND is_completed = 1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskTitle renames an owned task.
func (s *SQLStore) UpdateTaskTitle(ctx context.Context, id int64, ownerID, title string) (*model.Task, error) {
	return s.updateTask(ctx, id, ownerID, `title = ?`, title)
}

// SetTaskCompleted sets the completion flag of an owned task.
func (s *SQLStore) SetTaskCompleted(ctx context.Context, id int64, ownerID string, completed bool) (*model.Task, error) {
	flag := 0
	if completed {
		flag = 1
	}
	return s.updateTask(ctx, id, ownerID, `is_completed = ?`, flag)
}

// ToggleTask flips the completion flag of an owned task in a single
// statement.
func (s *SQLStore) ToggleTask(ctx context.Context, id int64, ownerID string) (*model.Task, error) {
	return s.updateTask(ctx, id, ownerID, `is_completed = 1 - is_completed`)
}

// updateTask applies set to one owned row and returns the row as stored
// after the update.
func (s *SQLStore) updateTask(ctx context.Context, id int64, ownerID, set string, args ...any) (*model.Task, error) {
	const selectTask = `SELECT ` + taskColumns + ` FROM tasks WHERE id = ? AND owner_id = ?`

	var task *model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Existence is checked separately because MySQL reports zero affected
		// rows when the new value equals the old one.
		if _, err := scanTask(tx.QueryRowContext(ctx, selectTask, id, ownerID)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to query task: %w", err)
		}

		execArgs := append(append([]any(nil), args...), toMicros(s.clock()), id, ownerID)
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET `+set+`, updated_at = ? WHERE id = ? AND owner_id = ?`, execArgs...,
		); err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		updated, err := scanTask(tx.QueryRowContext(ctx, selectTask, id, ownerID))
		if err != nil {
			return fmt.Errorf("failed to reload task: %w", err)
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes an owned task and returns it as it was before deletion.
func (s *SQLStore) DeleteTask(ctx context.Context, id int64, ownerID string) (*model.Task, error) {
	var task *model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query task: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		task = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv                 model.Conversation
		title                sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &conv.OwnerID, &title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		t := title.String
		conv.Title = &t
	}
	conv.CreatedAt = fromMicros(createdAt)
	conv.UpdatedAt = fromMicros(updatedAt)
	return &conv, nil
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		task                 model.Task
		completed            int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&task.ID, &task.OwnerID, &task.Title, &completed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	task.IsCompleted = completed != 0
	task.CreatedAt = fromMicros(createdAt)
	task.UpdatedAt = fromMicros(updatedAt)
	return &task, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
