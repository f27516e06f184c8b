// Package storage provides the SQLite-backed ticket store for ticketbridge.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Status represents the lifecycle state of a ticket.
type Status string

const (
	StatusOpen         Status = "open"
	StatusUserReplied  Status = "user_replied"
	StatusAdminReplied Status = "admin_replied"
	StatusReplied      Status = "replied"
	StatusAssigned     Status = "assigned"
	StatusClosed       Status = "closed"
)

// Ticket maps an Intercom conversation to the Discord message mirroring it.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID               string    `bun:"id,pk"`
	DiscordMessageID string    `bun:"discord_message_id"`
	Status           Status    `bun:"status"`
	LastUpdated      time.Time `bun:"last_updated"`
	ConversationID   string    `bun:"conversation_id"`
}

// Store provides ticket persistence backed by SQLite.
type Store struct {
	db *bun.DB
}

// Open opens (or creates) the ticket database at path and runs migrations.
// Use ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// modernc sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY under concurrent handlers.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ticket store: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Ticket)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return err
	}

	_, err = s.db.NewCreateIndex().
		Model((*Ticket)(nil)).
		Index("idx_tickets_conversation").
		Column("conversation_id").
		IfNotExists().
		Exec(ctx)
	return err
}

// Add inserts a ticket, replacing any existing ticket with the same ID.
func (s *Store) Add(ctx context.Context, t *Ticket) error {
	t.LastUpdated = time.Now()

	_, err := s.db.NewInsert().
		Model(t).
		On("CONFLICT (id) DO UPDATE").
		Set("discord_message_id = EXCLUDED.discord_message_id").
		Set("status = EXCLUDED.status").
		Set("last_updated = EXCLUDED.last_updated").
		Set("conversation_id = EXCLUDED.conversation_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("store ticket %s: %w", t.ID, err)
	}
	return nil
}

// UpdateStatus sets the status of a ticket and bumps its last-updated time.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.NewUpdate().
		Model((*Ticket)(nil)).
		Set("status = ?", status).
		Set("last_updated = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update ticket %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a ticket by ID.
func (s *Store) Get(ctx context.Context, id string) (*Ticket, error) {
	var t Ticket
	err := s.db.NewSelect().
		Model(&t).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return &t, nil
}

// GetByConversation retrieves the ticket tracking an Intercom conversation.
func (s *Store) GetByConversation(ctx context.Context, conversationID string) (*Ticket, error) {
	var t Ticket
	err := s.db.NewSelect().
		Model(&t).
		Where("conversation_id = ?", conversationID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket for conversation %s: %w", conversationID, err)
	}
	return &t, nil
}

// Remove deletes a ticket. Removing an unknown ticket is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.NewDelete().
		Model((*Ticket)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove ticket %s: %w", id, err)
	}
	return nil
}

// List returns all tickets ordered by last update, newest first.
func (s *Store) List(ctx context.Context) ([]Ticket, error) {
	var tickets []Ticket
	err := s.db.NewSelect().
		Model(&tickets).
		Order("last_updated DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// CountByStatus returns ticket counts grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status Status `bun:"status"`
		Count  int    `bun:"n"`
	}
	err := s.db.NewSelect().
		Model((*Ticket)(nil)).
		ColumnExpr("status").
		ColumnExpr("count(*) AS n").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}

	counts := make(map[Status]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// PruneOlderThan removes tickets whose last update is older than age and
// returns the number removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)

	res, err := s.db.NewDelete().
		Model((*Ticket)(nil)).
		Where("last_updated < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune tickets: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune tickets: count removed: %w", err)
	}
	return n, nil
}
