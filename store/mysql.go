package store

import (
	"context"
	"database/sql"
	"fmt"

	"ticket-ledger-engine/model"
)

const eventsSchema = `CREATE TABLE IF NOT EXISTS events (
	event_id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	venue VARCHAR(255) NOT NULL,
	description TEXT,
	scheduled_at DATETIME NOT NULL,
	total_supply BIGINT UNSIGNED NOT NULL,
	issued_count BIGINT UNSIGNED NOT NULL,
	reserved_count BIGINT UNSIGNED NOT NULL,
	max_price BIGINT UNSIGNED NOT NULL,
	category VARCHAR(16) NOT NULL,
	encrypted BOOLEAN NOT NULL,
	transferable BOOLEAN NOT NULL,
	state VARCHAR(16) NOT NULL,
	created_at DATETIME NOT NULL
)`

const ticketsSchema = `CREATE TABLE IF NOT EXISTS tickets (
	ticket_id BIGINT UNSIGNED NOT NULL PRIMARY KEY,
	event_id BIGINT UNSIGNED NOT NULL,
	seat_label VARCHAR(64),
	owner VARCHAR(128),
	price_settled BIGINT UNSIGNED NOT NULL,
	state VARCHAR(16) NOT NULL,
	issued_at DATETIME NULL,
	redeemed_by VARCHAR(128),
	redeemed_at DATETIME NULL,
	INDEX idx_tickets_event (event_id),
	INDEX idx_tickets_owner (owner)
)`

const upsertEvent = `INSERT INTO events
	(event_id, name, venue, description, scheduled_at, total_supply, issued_count, reserved_count, max_price, category, encrypted, transferable, state, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	issued_count=VALUES(issued_count), reserved_count=VALUES(reserved_count), state=VALUES(state)`

const upsertTicket = `INSERT INTO tickets
	(ticket_id, event_id, seat_label, owner, price_settled, state, issued_at, redeemed_by, redeemed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
	owner=VALUES(owner), price_settled=VALUES(price_settled), state=VALUES(state),
	issued_at=VALUES(issued_at), redeemed_by=VALUES(redeemed_by), redeemed_at=VALUES(redeemed_at)`

// MySQL is the durable store used in production.
type MySQL struct {
	db *sql.DB
}

func NewMySQL(db *sql.DB) (*MySQL, error) {
	if _, err := db.Exec(eventsSchema); err != nil {
		return nil, fmt.Errorf("newMySQL: error ensuring events table: %w", err)
	}
	if _, err := db.Exec(ticketsSchema); err != nil {
		return nil, fmt.Errorf("newMySQL: error ensuring tickets table: %w", err)
	}
	return &MySQL{db: db}, nil
}

func (s *MySQL) Save(ctx context.Context, ev *model.Event, tickets ...*model.Ticket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save: error begining db transaction: %w", err)
	}

	if ev != nil {
		_, err = tx.ExecContext(ctx, upsertEvent,
			ev.ID, ev.Name, ev.Venue, ev.Description, ev.ScheduledAt,
			ev.TotalSupply, ev.IssuedCount, ev.ReservedCount, ev.MaxPrice,
			ev.Category, ev.Encrypted, ev.Transferable, ev.State, ev.CreatedAt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save: error upserting event %d: %w", ev.ID, err)
		}
	}

	for _, t := range tickets {
		_, err = tx.ExecContext(ctx, upsertTicket,
			t.ID, t.EventID, t.SeatLabel, t.Owner, t.PriceSettled, t.State,
			t.IssuedAt, t.RedeemedBy, t.RedeemedAt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save: error upserting ticket %d: %w", t.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("save: could not commit transaction: %w", err)
	}

	return nil
}

func (s *MySQL) LoadEvents(ctx context.Context) ([]*model.Event, error) {
	q := `SELECT event_id, name, venue, description, scheduled_at, total_supply, issued_count,
		  reserved_count, max_price, category, encrypted, transferable, state, created_at FROM events`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loadEvents: error querying events: %w", err)
	}
	defer rows.Close()

	var evs []*model.Event
	for rows.Next() {
		ev := model.Event{}
		err := rows.Scan(
			&ev.ID,
			&ev.Name,
			&ev.Venue,
			&ev.Description,
			&ev.ScheduledAt,
			&ev.TotalSupply,
			&ev.IssuedCount,
			&ev.ReservedCount,
			&ev.MaxPrice,
			&ev.Category,
			&ev.Encrypted,
			&ev.Transferable,
			&ev.State,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("loadEvents: error scanning events: %w", err)
		}
		evs = append(evs, &ev)
	}

	return evs, rows.Err()
}

func (s *MySQL) LoadTickets(ctx context.Context) ([]*model.Ticket, error) {
	q := `SELECT ticket_id, event_id, seat_label, owner, price_settled, state, issued_at,
		  redeemed_by, redeemed_at FROM tickets`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loadTickets: error querying tickets: %w", err)
	}
	defer rows.Close()

	var tks []*model.Ticket
	for rows.Next() {
		t := model.Ticket{}
		var seatLabel, owner, redeemedBy sql.NullString
		err := rows.Scan(
			&t.ID,
			&t.EventID,
			&seatLabel,
			&owner,
			&t.PriceSettled,
			&t.State,
			&t.IssuedAt,
			&redeemedBy,
			&t.RedeemedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("loadTickets: error scanning tickets: %w", err)
		}
		t.SeatLabel = seatLabel.String
		t.Owner = owner.String
		t.RedeemedBy = redeemedBy.String
		tks = append(tks, &t)
	}

	return tks, rows.Err()
}

func (s *MySQL) Close() error {
	return s.db.Close()
}
