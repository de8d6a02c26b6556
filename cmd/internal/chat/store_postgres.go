package chat

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/cmd/identity/ids"
)

// PostgresStore implements Store on two tables:
//
//	CREATE TABLE ripple.conversations (
//	    id               TEXT PRIMARY KEY,
//	    participant_lo   TEXT NOT NULL REFERENCES ripple.users (id),
//	    participant_hi   TEXT NOT NULL REFERENCES ripple.users (id),
//	    last_message_id  TEXT,
//	    last_activity_at TIMESTAMPTZ NOT NULL,
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    CHECK (participant_lo < participant_hi),
//	    UNIQUE (participant_lo, participant_hi)
//	);
//
//	CREATE TABLE ripple.messages (
//	    id              TEXT PRIMARY KEY,
//	    conversation_id TEXT NOT NULL REFERENCES ripple.conversations (id),
//	    sender_id       TEXT NOT NULL REFERENCES ripple.users (id),
//	    body            TEXT NOT NULL,
//	    read_by         TEXT[] NOT NULL DEFAULT '{}',
//	    created_at      TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX messages_conversation_order
//	    ON ripple.messages (conversation_id, created_at, id);
//
// The UNIQUE pair constraint plus ON CONFLICT DO NOTHING gives idempotent
// conversation creation under races. Appends take a per-conversation advisory
// lock inside the transaction, so the timestamp clamp and the pointer update
// are serialized per conversation without blocking unrelated traffic.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed chat store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const conversationColumns = `id, participant_lo, participant_hi,
	COALESCE(last_message_id, ''), last_activity_at, created_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ParticipantLo, &c.ParticipantHi, &c.LastMessageID, &c.LastActivityAt, &c.CreatedAt)
	return c, err
}

// GetOrCreateConversation returns the conversation for the pair, creating it
// if absent. The second return reports whether this call created it.
func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, now time.Time, userA, userB string) (Conversation, bool, error) {
	lo, hi := NormalizePair(userA, userB)

	c, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM ripple.conversations
		WHERE participant_lo = $1 AND participant_hi = $2
	`, lo, hi))
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, false, err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ripple.conversations (id, participant_lo, participant_hi, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (participant_lo, participant_hi) DO NOTHING
	`, ids.MustNewULID(now), lo, hi, now)
	if err != nil {
		return Conversation{}, false, err
	}
	created := tag.RowsAffected() == 1

	// Re-read in either case: a concurrent creator may have won the conflict.
	c, err = scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM ripple.conversations
		WHERE participant_lo = $1 AND participant_hi = $2
	`, lo, hi))
	if err != nil {
		return Conversation{}, false, err
	}
	return c, created, nil
}

// GetConversation fetches a conversation by id.
func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM ripple.conversations
		WHERE id = $1
	`, conversationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// ListConversations returns the user's conversations, most recent activity
// first.
func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM ripple.conversations
		WHERE participant_lo = $1 OR participant_hi = $1
		ORDER BY last_activity_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// advisoryKey derives the advisory lock key for a conversation id.
func advisoryKey(conversationID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(conversationID))
	return int64(h.Sum64())
}

// AppendMessage inserts the message and advances the conversation pointer in
// one transaction.
//
// The assigned timestamp is GREATEST(in.Now, last_activity_at + 1us), so
// created_at is strictly increasing per conversation: wall clocks can step
// backwards between appends, and an equal timestamp would hand the listing
// order to the id tie-break, which is random across appends.
func (s *PostgresStore) AppendMessage(ctx context.Context, in AppendInput) (Message, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(in.ConversationID)); err != nil {
		return Message{}, err
	}

	var createdAt time.Time
	err = tx.QueryRow(ctx, `
		SELECT GREATEST($2::timestamptz, last_activity_at + interval '1 microsecond')
		FROM ripple.conversations
		WHERE id = $1
	`, in.ConversationID, in.Now).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:             ids.MustNewULID(createdAt),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		ReadBy:         []string{in.SenderID},
		CreatedAt:      createdAt,
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ripple.messages (id, conversation_id, sender_id, body, read_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.Body, msg.ReadBy, msg.CreatedAt); err != nil {
		return Message{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE ripple.conversations
		SET last_message_id = $2, last_activity_at = $3
		WHERE id = $1
	`, msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		return Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in their canonical order.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, body, read_by, created_at
		FROM ripple.messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.ReadBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead adds the user to the read set of every message in the
// conversation that does not already carry them. Idempotent.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ripple.messages
		SET read_by = array_append(read_by, $2)
		WHERE conversation_id = $1 AND NOT ($2 = ANY (read_by))
	`, conversationID, userID)
	return err
}
