package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"upscan/internal/form"
)

// ErrNoTicket is returned when a ticket identifier is blank.
var ErrNoTicket = errors.New("ticket id is required")

// Summary describes one stored draft.
type Summary struct {
	TicketID  string
	Fields    int
	UpdatedAt time.Time
}

func normalizeTicket(ticketID string) (string, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return "", ErrNoTicket
	}
	return ticketID, nil
}

// Load returns the stored fields of a ticket's form in their original
// order. A ticket without a draft yields an empty field set.
func (s *Store) Load(ctx context.Context, ticketID string) (*form.Fields, error) {
	ticketID, err := normalizeTicket(ticketID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM draft_fields WHERE ticket_id = ? ORDER BY position`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("query draft %s: %w", ticketID, err)
	}
	defer rows.Close()

	fields := form.NewFields()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan draft field: %w", err)
		}
		fields.Append(name, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draft fields: %w", err)
	}
	return fields, nil
}

// Save replaces the stored draft of a ticket with fields.
func (s *Store) Save(ctx context.Context, ticketID string, fields *form.Fields) error {
	ticketID, err := normalizeTicket(ticketID)
	if err != nil {
		return err
	}
	var items []form.Field
	if fields != nil {
		items = fields.All()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin draft tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO drafts (ticket_id, updated_at) VALUES (?, ?)
             ON CONFLICT(ticket_id) DO UPDATE SET updated_at = excluded.updated_at`,
			ticketID, now,
		); err != nil {
			return fmt.Errorf("upsert draft %s: %w", ticketID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM draft_fields WHERE ticket_id = ?`, ticketID); err != nil {
			return fmt.Errorf("clear draft fields %s: %w", ticketID, err)
		}
		for position, field := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO draft_fields (ticket_id, position, name, value) VALUES (?, ?, ?, ?)`,
				ticketID, position, field.Name, field.Value,
			); err != nil {
				return fmt.Errorf("insert draft field %q: %w", field.Name, err)
			}
		}
		return tx.Commit()
	})
}

// Clear deletes a ticket's draft and reports whether one existed.
func (s *Store) Clear(ctx context.Context, ticketID string) (bool, error) {
	ticketID, err := normalizeTicket(ticketID)
	if err != nil {
		return false, err
	}
	var affected int64
	err = retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, `DELETE FROM draft_fields WHERE ticket_id = ?`, ticketID); err != nil {
			return err
		}
		var res sql.Result
		if res, err = tx.ExecContext(ctx, `DELETE FROM drafts WHERE ticket_id = ?`, ticketID); err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("clear draft %s: %w", ticketID, err)
	}
	return affected > 0, nil
}

// List summarizes every stored draft, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.ticket_id, d.updated_at, COUNT(f.position)
         FROM drafts d LEFT JOIN draft_fields f ON f.ticket_id = d.ticket_id
         GROUP BY d.ticket_id, d.updated_at
         ORDER BY d.updated_at DESC, d.ticket_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary Summary
			updated string
		)
		if err := rows.Scan(&summary.TicketID, &updated, &summary.Fields); err != nil {
			return nil, fmt.Errorf("scan draft summary: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			summary.UpdatedAt = ts
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
