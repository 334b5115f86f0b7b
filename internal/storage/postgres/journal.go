package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one committed action in the combat journal.
type Entry struct {
	ID         uuid.UUID
	SessionID  string
	Room       string
	Seq        int
	Action     string
	Category   string
	TargetName string
	Breakdown  string
	Trace      string
	TickLog    string
	Narrative  string
	HeroHP     int
	EnemyHP    int
	Mode       string
	CreatedAt  time.Time
}

// ErrDuplicateEntry is returned when (session, seq) is already journaled.
var ErrDuplicateEntry = errors.New("journal entry already exists")

// Validate checks the fields Append requires.
func (e Entry) Validate() error {
	var errs []error
	if e.SessionID == "" {
		errs = append(errs, errors.New("session id must not be empty"))
	}
	if e.Seq < 1 {
		errs = append(errs, fmt.Errorf("seq must be >= 1, got %d", e.Seq))
	}
	if e.Action == "" {
		errs = append(errs, errors.New("action must not be empty"))
	}
	if e.Mode == "" {
		errs = append(errs, errors.New("mode must not be empty"))
	}
	return errors.Join(errs...)
}

// JournalRepository records committed resolutions. It is write-mostly: the
// journal is an audit trail and is never read back to restore a game.
type JournalRepository struct {
	db *pgxpool.Pool
}

// NewJournalRepository creates a JournalRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewJournalRepository(db *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{db: db}
}

// Append inserts e, assigning an ID when it has none.
//
// Precondition: e must pass Validate.
// Postcondition: Returns the stored entry with ID and CreatedAt set, or
// ErrDuplicateEntry if (SessionID, Seq) exists.
func (r *JournalRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, fmt.Errorf("invalid journal entry: %w", err)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	tag, err := r.db.Exec(ctx,
		`INSERT INTO combat_journal
		   (id, session_id, room, seq, action, category, target_name, breakdown,
		    trace, tick_log, narrative, hero_hp, enemy_hp, mode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (session_id, seq) DO NOTHING`,
		e.ID, e.SessionID, e.Room, e.Seq, e.Action, e.Category, e.TargetName, e.Breakdown,
		e.Trace, e.TickLog, e.Narrative, e.HeroHP, e.EnemyHP, e.Mode,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("appending journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Entry{}, ErrDuplicateEntry
	}
	if err := r.db.QueryRow(ctx,
		`SELECT created_at FROM combat_journal WHERE id = $1`, e.ID,
	).Scan(&e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("reading journal timestamp: %w", err)
	}
	return e, nil
}

// ListBySession returns a session's entries in commit order.
func (r *JournalRepository) ListBySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, room, seq, action, category, target_name, breakdown,
		        trace, tick_log, narrative, hero_hp, enemy_hp, mode, created_at
		   FROM combat_journal
		  WHERE session_id = $1
		  ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing journal: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.SessionID, &e.Room, &e.Seq, &e.Action, &e.Category,
			&e.TargetName, &e.Breakdown, &e.Trace, &e.TickLog, &e.Narrative,
			&e.HeroHP, &e.EnemyHP, &e.Mode, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning journal: %w", err)
	}
	return entries, nil
}
