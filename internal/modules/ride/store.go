// README: Ride and ride request store backed by PostgreSQL.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campuspool/internal/apperr"
	"campuspool/internal/types"
)

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
	id, driver_id, source, destination,
	source_lat, source_lng, destination_lat, destination_lng,
	ride_date, ride_time, available_seats, estimated_cost,
	status, created_at, completed_at`

const requestColumns = `
	rr.id, rr.ride_id, rr.rider_id, rr.status, rr.status_version, rr.ride_pin,
	rr.created_at, rr.accepted_at, rr.rejected_at, rr.started_at,
	rr.reached_safely_at, rr.completed_at`

func (s *Store) CreateRide(ctx context.Context, r *Ride) error {
	slat, slng := pointArgs(r.SourcePoint)
	dlat, dlng := pointArgs(r.DestinationPoint)
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, driver_id, source, destination,
			source_lat, source_lng, destination_lat, destination_lng,
			ride_date, ride_time, available_seats, estimated_cost,
			status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(r.ID), string(r.DriverID), r.Source, r.Destination,
		slat, slng, dlat, dlng,
		r.Date, r.Time, r.AvailableSeats, r.EstimatedCost,
		string(r.Status), r.CreatedAt,
	)
	return mapErr("create ride", err, "ride already exists")
}

func (s *Store) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("ride not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("get ride", err)
	}
	return r, nil
}

func (s *Store) ListRides(ctx context.Context, f RideFilter) ([]*Ride, error) {
	var where []string
	var args []any
	if f.DriverID != nil {
		args = append(args, string(*f.DriverID))
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Destination != "" {
		args = append(args, likeEscape(f.Destination))
		where = append(where, fmt.Sprintf(`destination ILIKE '%%' || $%d || '%%'`, len(args)))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		where = append(where, fmt.Sprintf("ride_date = $%d", len(args)))
	}
	q := `SELECT ` + rideColumns + ` FROM rides`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Unavailable("list rides", err)
	}
	defer rows.Close()

	out := make([]*Ride, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, apperr.Unavailable("scan ride", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list rides", err)
	}
	return out, nil
}

func (s *Store) UpdateRide(ctx context.Context, id types.ID, p RidePatch) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Unavailable("begin update ride", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM rides WHERE id = $1 FOR UPDATE`, string(id)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("ride not found")
	}
	if err != nil {
		return apperr.Unavailable("lock ride", err)
	}
	if Status(status) != StatusActive {
		return apperr.Conflict("ride is no longer active")
	}
	if p.AvailableSeats != nil {
		var committed int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM ride_requests WHERE ride_id = $1 AND status = ANY($2)`,
			string(id), statusArgs(Committing),
		).Scan(&committed)
		if err != nil {
			return apperr.Unavailable("count committed", err)
		}
		if *p.AvailableSeats < committed {
			return apperr.Conflict("seats cannot drop below accepted riders")
		}
	}

	var slat, slng, dlat, dlng *float64
	if p.SourcePoint != nil {
		slat, slng = &p.SourcePoint.Lat, &p.SourcePoint.Lng
	}
	if p.DestinationPoint != nil {
		dlat, dlng = &p.DestinationPoint.Lat, &p.DestinationPoint.Lng
	}
	_, err = tx.Exec(ctx, `
		UPDATE rides SET
			source          = COALESCE($2::text, source),
			destination     = COALESCE($3::text, destination),
			source_lat      = COALESCE($4::double precision, source_lat),
			source_lng      = COALESCE($5::double precision, source_lng),
			destination_lat = COALESCE($6::double precision, destination_lat),
			destination_lng = COALESCE($7::double precision, destination_lng),
			ride_date       = COALESCE($8::text, ride_date),
			ride_time       = COALESCE($9::text, ride_time),
			available_seats = COALESCE($10::int, available_seats),
			estimated_cost  = COALESCE($11::double precision, estimated_cost)
		WHERE id = $1`,
		string(id), p.Source, p.Destination, slat, slng, dlat, dlng,
		p.Date, p.Time, p.AvailableSeats, p.EstimatedCost,
	)
	if err != nil {
		return apperr.Unavailable("update ride", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return apperr.Unavailable("commit update ride", err)
	}
	return nil
}

func (s *Store) CloseRide(ctx context.Context, id types.ID, at time.Time) (res CloseResult, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return CloseResult{}, apperr.Unavailable("begin close ride", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE rides SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'active'`, string(id), at)
	if err != nil {
		return CloseResult{}, apperr.Unavailable("close ride", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, string(id)).Scan(&exists)
		if err != nil {
			return CloseResult{}, apperr.Unavailable("close ride", err)
		}
		_ = tx.Rollback(ctx)
		if !exists {
			return CloseResult{}, apperr.NotFound("ride not found")
		}
		return CloseResult{}, nil
	}

	rows, err := tx.Query(ctx, `
		UPDATE ride_requests rr
		SET status = 'completed', status_version = rr.status_version + 1, completed_at = $2
		FROM (
			SELECT id, status FROM ride_requests
			WHERE ride_id = $1 AND status = ANY($3)
			FOR UPDATE
		) prev
		WHERE rr.id = prev.id
		RETURNING rr.id, prev.status`, string(id), at, statusArgs(Committing))
	if err != nil {
		return CloseResult{}, apperr.Unavailable("complete requests", err)
	}
	res.Closed = true
	for rows.Next() {
		var rid, from string
		if err = rows.Scan(&rid, &from); err != nil {
			rows.Close()
			return CloseResult{}, apperr.Unavailable("scan completed request", err)
		}
		res.Completed = append(res.Completed, CompletedRequest{ID: types.ID(rid), From: RequestStatus(from)})
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return CloseResult{}, apperr.Unavailable("complete requests", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return CloseResult{}, apperr.Unavailable("commit close ride", err)
	}
	return res, nil
}

func (s *Store) DeleteRide(ctx context.Context, id types.ID) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Unavailable("begin delete ride", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if _, err = tx.Exec(ctx, `DELETE FROM ride_requests WHERE ride_id = $1`, string(id)); err != nil {
		return apperr.Unavailable("delete requests", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM rides WHERE id = $1`, string(id))
	if err != nil {
		return apperr.Unavailable("delete ride", err)
	}
	if tag.RowsAffected() == 0 {
		err = apperr.NotFound("ride not found")
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return apperr.Unavailable("commit delete ride", err)
	}
	return nil
}

func (s *Store) CountRequests(ctx context.Context, rideID types.ID, statuses []RequestStatus) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM ride_requests WHERE ride_id = $1 AND status = ANY($2)`,
		string(rideID), statusArgs(statuses),
	).Scan(&n)
	if err != nil {
		return 0, apperr.Unavailable("count requests", err)
	}
	return n, nil
}

func (s *Store) FindRequest(ctx context.Context, rideID, riderID types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM ride_requests rr
		WHERE rr.ride_id = $1 AND rr.rider_id = $2`, string(rideID), string(riderID))
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Unavailable("find request", err)
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM ride_requests rr WHERE rr.id = $1`, string(id))
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("request not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("get request", err)
	}
	return req, nil
}

func (s *Store) ListRequests(ctx context.Context, f RequestFilter) ([]*Request, error) {
	var where []string
	var args []any
	if f.RideID != nil {
		args = append(args, string(*f.RideID))
		where = append(where, fmt.Sprintf("rr.ride_id = $%d", len(args)))
	}
	if f.RiderID != nil {
		args = append(args, string(*f.RiderID))
		where = append(where, fmt.Sprintf("rr.rider_id = $%d", len(args)))
	}
	if f.DriverID != nil {
		args = append(args, string(*f.DriverID))
		where = append(where, fmt.Sprintf("r.driver_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, statusArgs(f.Statuses))
		where = append(where, fmt.Sprintf("rr.status = ANY($%d)", len(args)))
	}
	q := `SELECT ` + requestColumns + ` FROM ride_requests rr JOIN rides r ON r.id = rr.ride_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY rr.created_at DESC, rr.id DESC"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Unavailable("list requests", err)
	}
	defer rows.Close()

	out := make([]*Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, apperr.Unavailable("scan request", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Unavailable("list requests", err)
	}
	return out, nil
}

// InsertRequest locks the parent ride row so the duplicate and capacity checks
// and the insert are serialised against every other admission on that ride.
func (s *Store) InsertRequest(ctx context.Context, req *Request) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Unavailable("begin insert request", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	seats, err := lockRide(ctx, tx, req.RideID)
	if err != nil {
		return err
	}

	var exists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ride_requests WHERE ride_id = $1 AND rider_id = $2)`,
		string(req.RideID), string(req.RiderID),
	).Scan(&exists)
	if err != nil {
		return apperr.Unavailable("check duplicate", err)
	}
	if exists {
		err = apperr.Conflict("you have already requested this ride")
		return err
	}
	if err = checkCapacity(ctx, tx, req.RideID, seats); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ride_requests (id, ride_id, rider_id, status, status_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(req.ID), string(req.RideID), string(req.RiderID),
		string(req.Status), req.StatusVersion, req.CreatedAt,
	)
	if err != nil {
		err = mapErr("insert request", err, "you have already requested this ride")
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return apperr.Unavailable("commit insert request", err)
	}
	return nil
}

func (s *Store) AcceptRequest(ctx context.Context, tr Transition) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Unavailable("begin accept request", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	seats, err := lockRide(ctx, tx, tr.RideID)
	if err != nil {
		return err
	}
	if err = checkCapacity(ctx, tx, tr.RideID, seats); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = 'accepted',
		    status_version = status_version + 1,
		    ride_pin = $2,
		    accepted_at = $3
		WHERE id = $1 AND ride_id = $4 AND status = 'requested' AND status_version = $5`,
		string(tr.RequestID), tr.Pin, tr.At, string(tr.RideID), tr.Version,
	)
	if err != nil {
		return apperr.Unavailable("accept request", err)
	}
	if tag.RowsAffected() != 1 {
		err = apperr.Conflict("request already processed")
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return apperr.Unavailable("commit accept request", err)
	}
	return nil
}

func (s *Store) UpdateRequestStatus(ctx context.Context, tr Transition) (bool, error) {
	var pin *string
	if tr.Pin != "" {
		pin = &tr.Pin
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE ride_requests
		SET status = $1::text,
		    status_version = status_version + 1,
		    ride_pin = COALESCE($5::text, ride_pin),
		    accepted_at = CASE WHEN $1::text = 'accepted' THEN $2::timestamptz ELSE accepted_at END,
		    rejected_at = CASE WHEN $1::text = 'rejected' THEN $2::timestamptz ELSE rejected_at END,
		    started_at = CASE WHEN $1::text = 'ongoing' THEN $2::timestamptz ELSE started_at END,
		    reached_safely_at = CASE WHEN $1::text = 'completed' AND $4::text = 'ongoing' THEN $2::timestamptz ELSE reached_safely_at END,
		    completed_at = CASE WHEN $1::text = 'completed' THEN $2::timestamptz ELSE completed_at END
		WHERE id = $3 AND status = $4::text AND status_version = $6`,
		string(tr.To), tr.At, string(tr.RequestID), string(tr.From), pin, tr.Version,
	)
	if err != nil {
		return false, apperr.Unavailable("update request status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteArrival(ctx context.Context, tr Transition) (res ArrivalResult, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return ArrivalResult{}, apperr.Unavailable("begin complete arrival", err)
	}
	defer func() {
		if err != nil || !res.Applied {
			_ = tx.Rollback(ctx)
		}
	}()

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM rides WHERE id = $1 FOR UPDATE`, string(tr.RideID)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		err = apperr.NotFound("ride not found")
		return ArrivalResult{}, err
	}
	if err != nil {
		return ArrivalResult{}, apperr.Unavailable("lock ride", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE ride_requests
		SET status = 'completed',
		    status_version = status_version + 1,
		    reached_safely_at = $2,
		    completed_at = $2
		WHERE id = $1 AND ride_id = $3 AND status = 'ongoing' AND status_version = $4`,
		string(tr.RequestID), tr.At, string(tr.RideID), tr.Version,
	)
	if err != nil {
		return ArrivalResult{}, apperr.Unavailable("complete request", err)
	}
	if tag.RowsAffected() != 1 {
		return ArrivalResult{}, nil
	}
	res.Applied = true

	tag, err = tx.Exec(ctx, `
		UPDATE rides SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'active'
		  AND NOT EXISTS (
			SELECT 1 FROM ride_requests WHERE ride_id = $1 AND status = ANY($3)
		  )`, string(tr.RideID), tr.At, statusArgs(Committing))
	if err != nil {
		return ArrivalResult{}, apperr.Unavailable("auto close ride", err)
	}
	res.RideClosed = tag.RowsAffected() == 1
	if err = tx.Commit(ctx); err != nil {
		return ArrivalResult{}, apperr.Unavailable("commit complete arrival", err)
	}
	return res, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO request_state_events (
			request_id, ride_id, from_status, to_status, actor_role, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RequestID), string(e.RideID), string(e.From), string(e.To),
		string(e.ActorRole), actor, e.CreatedAt,
	)
	if err != nil {
		return apperr.Unavailable("append event", err)
	}
	return nil
}

func lockRide(ctx context.Context, tx pgx.Tx, rideID types.ID) (int, error) {
	var seats int
	var status string
	err := tx.QueryRow(ctx, `
		SELECT available_seats, status FROM rides WHERE id = $1 FOR UPDATE`, string(rideID),
	).Scan(&seats, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("ride not found")
	}
	if err != nil {
		return 0, apperr.Unavailable("lock ride", err)
	}
	if Status(status) != StatusActive {
		return 0, apperr.Conflict("this ride is no longer active")
	}
	return seats, nil
}

func checkCapacity(ctx context.Context, tx pgx.Tx, rideID types.ID, seats int) error {
	var committed int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM ride_requests WHERE ride_id = $1 AND status = ANY($2)`,
		string(rideID), statusArgs(Committing),
	).Scan(&committed)
	if err != nil {
		return apperr.Unavailable("count committed", err)
	}
	if committed >= seats {
		return apperr.CapacityExceeded("no seats available")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*Ride, error) {
	var r Ride
	var id, driverID, status string
	var slat, slng, dlat, dlng *float64
	err := row.Scan(
		&id, &driverID, &r.Source, &r.Destination,
		&slat, &slng, &dlat, &dlng,
		&r.Date, &r.Time, &r.AvailableSeats, &r.EstimatedCost,
		&status, &r.CreatedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = types.ID(id)
	r.DriverID = types.ID(driverID)
	r.SourcePoint = toPoint(slat, slng)
	r.DestinationPoint = toPoint(dlat, dlng)
	if r.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	var id, rideID, riderID, status string
	var pin *string
	err := row.Scan(
		&id, &rideID, &riderID, &status, &req.StatusVersion, &pin,
		&req.CreatedAt, &req.AcceptedAt, &req.RejectedAt, &req.StartedAt,
		&req.ReachedSafelyAt, &req.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	req.ID = types.ID(id)
	req.RideID = types.ID(rideID)
	req.RiderID = types.ID(riderID)
	if pin != nil {
		req.Pin = *pin
	}
	if req.Status, err = ParseRequestStatus(status); err != nil {
		return nil, err
	}
	return &req, nil
}

func mapErr(op string, err error, conflictReason string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Conflict(conflictReason)
	}
	return apperr.Unavailable(op, err)
}

func statusArgs(set []RequestStatus) []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = string(s)
	}
	return out
}

func pointArgs(p *types.Point) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Lat, p.Lng
	return &lat, &lng
}

func toPoint(lat, lng *float64) *types.Point {
	if lat == nil || lng == nil {
		return nil
	}
	return &types.Point{Lat: *lat, Lng: *lng}
}

func likeEscape(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}
