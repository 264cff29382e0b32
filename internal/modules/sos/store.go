// README: SOS event store backed by PostgreSQL; one open event per request is a partial unique index.
package sos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campuspool/internal/apperr"
	"campuspool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const columns = `
	id, ride_request_id, ride_id, triggered_by, triggered_role,
	lat, lng, geohash, message, status, admin_notes,
	created_at, reviewed_at, resolved_at, resolved_by`

func (s *Store) Create(ctx context.Context, e *Event) error {
	var lat, lng *float64
	if e.Location != nil {
		lat, lng = &e.Location.Lat, &e.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sos_events (
			id, ride_request_id, ride_id, triggered_by, triggered_role,
			lat, lng, geohash, message, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
		string(e.ID), string(e.RideRequestID), string(e.RideID), string(e.TriggeredBy), string(e.TriggeredRole),
		lat, lng, e.Geohash, e.Message, string(e.Status), e.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("an SOS is already open for this ride")
		}
		return apperr.Unavailable("create sos", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Event, error) {
	row := s.db.QueryRow(ctx, `SELECT `+columns+` FROM sos_events WHERE id = $1`, string(id))
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("SOS event not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("get sos", err)
	}
	return e, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]*Event, error) {
	var where []string
	var args []any
	if f.RideRequestID != nil {
		args = append(args, string(*f.RideRequestID))
		where = append(where, fmt.Sprintf("ride_request_id = $%d", len(args)))
	}
	if f.TriggeredBy != nil {
		args = append(args, string(*f.TriggeredBy))
		where = append(where, fmt.Sprintf("triggered_by = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		vals := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			vals[i] = string(st)
		}
		args = append(args, vals)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	q := `SELECT ` + columns + ` FROM sos_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Unavailable("list sos", err)
	}
	defer rows.Close()

	out := make([]*Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, apperr.Unavailable("scan sos", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list sos", err)
	}
	return out, nil
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM sos_events GROUP BY status`)
	if err != nil {
		return Counts{}, apperr.Unavailable("count sos", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, apperr.Unavailable("scan sos counts", err)
		}
		c.add(Status(status), n)
	}
	if err := rows.Err(); err != nil {
		return Counts{}, apperr.Unavailable("count sos", err)
	}
	return c, nil
}

func (s *Store) Transition(ctx context.Context, c Change) (bool, error) {
	var resolvedBy *string
	if c.To == StatusResolved {
		v := string(c.AdminID)
		resolvedBy = &v
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE sos_events
		SET status = $2::text,
		    admin_notes = COALESCE($4::text, admin_notes),
		    reviewed_at = CASE WHEN $2::text = 'reviewed' THEN $5::timestamptz ELSE reviewed_at END,
		    resolved_at = CASE WHEN $2::text = 'resolved' THEN $5::timestamptz ELSE resolved_at END,
		    resolved_by = COALESCE($6::text, resolved_by)
		WHERE id = $1 AND status = $3::text`,
		string(c.ID), string(c.To), string(c.From), c.Notes, c.At, resolvedBy,
	)
	if err != nil {
		return false, apperr.Unavailable("update sos", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, c.ID); err != nil {
		return false, err
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var id, reqID, rideID, by, role, status string
	var lat, lng *float64
	var hash, msg, resolvedBy *string
	err := row.Scan(
		&id, &reqID, &rideID, &by, &role,
		&lat, &lng, &hash, &msg, &status, &e.AdminNotes,
		&e.CreatedAt, &e.ReviewedAt, &e.ResolvedAt, &resolvedBy,
	)
	if err != nil {
		return nil, err
	}
	e.ID = types.ID(id)
	e.RideRequestID = types.ID(reqID)
	e.RideID = types.ID(rideID)
	e.TriggeredBy = types.ID(by)
	e.TriggeredRole = types.Role(role)
	if lat != nil && lng != nil {
		e.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	if hash != nil {
		e.Geohash = *hash
	}
	if msg != nil {
		e.Message = *msg
	}
	if resolvedBy != nil {
		rb := types.ID(*resolvedBy)
		e.ResolvedBy = &rb
	}
	if e.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	return &e, nil
}
