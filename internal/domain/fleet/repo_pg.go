package fleet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Emergency Repository ===========

type emergencyRepoPG struct{ pool *pgxpool.Pool }

func NewEmergencyRepoPG(pool *pgxpool.Pool) EmergencyRepository { return &emergencyRepoPG{pool: pool} }

func (r *emergencyRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const emergencyCols = `id, lat, lng, address, emergency_type, severity, description,
	reported_victims, caller_name, created_at`

func (r *emergencyRepoPG) scanEmergency(row pgx.Row) (*Emergency, error) {
	var e Emergency
	var sev string
	err := row.Scan(&e.ID, &e.Lat, &e.Lng, &e.Address, &e.EmergencyType, &sev, &e.Description,
		&e.ReportedVictims, &e.CallerName, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if e.Severity, err = signal.ParseSeverity(sev); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *emergencyRepoPG) Create(ctx context.Context, e *Emergency) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO emergencies (id, lat, lng, address, emergency_type, severity, description,
			reported_victims, caller_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Lat, e.Lng, e.Address, e.EmergencyType, e.Severity.String(), e.Description,
		e.ReportedVictims, e.CallerName)
	return err
}

func (r *emergencyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Emergency, error) {
	return r.scanEmergency(r.conn(ctx).QueryRow(ctx, `SELECT `+emergencyCols+` FROM emergencies WHERE id = $1`, id))
}

func (r *emergencyRepoPG) List(ctx context.Context, limit, offset int) ([]*Emergency, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM emergencies`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+emergencyCols+` FROM emergencies ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Emergency
	for rows.Next() {
		e, err := r.scanEmergency(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}

// =========== Trip Repository ===========

type tripRepoPG struct{ pool *pgxpool.Pool }

func NewTripRepoPG(pool *pgxpool.Pool) TripRepository { return &tripRepoPG{pool: pool} }

func (r *tripRepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const tripCols = `id, emergency_id, ambulance_id, hospital_id, severity, state, created_at, updated_at`

const terminalStates = `('COMPLETED','CANCELLED')`

func (r *tripRepoPG) scanTrip(row pgx.Row) (*Trip, error) {
	var t Trip
	var sev, state string
	err := row.Scan(&t.ID, &t.EmergencyID, &t.AmbulanceID, &t.HospitalID, &sev, &state, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if t.Severity, err = signal.ParseSeverity(sev); err != nil {
		return nil, err
	}
	if t.State, err = ParseTripState(state); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tripRepoPG) Create(ctx context.Context, t *Trip) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO trips (id, emergency_id, ambulance_id, hospital_id, severity, state)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.EmergencyID, t.AmbulanceID, t.HospitalID, t.Severity.String(), string(t.State))
	return err
}

func (r *tripRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Trip, error) {
	return r.scanTrip(r.conn(ctx).QueryRow(ctx, `SELECT `+tripCols+` FROM trips WHERE id = $1`, id))
}

func (r *tripRepoPG) Update(ctx context.Context, t *Trip) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE trips SET state=$2, updated_at=NOW() WHERE id = $1`,
		t.ID, string(t.State))
	return err
}

func (r *tripRepoPG) List(ctx context.Context, limit, offset int) ([]*Trip, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM trips`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tripCols+` FROM trips ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *tripRepoPG) ListByAmbulance(ctx context.Context, ambulanceID string, limit, offset int) ([]*Trip, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM trips WHERE ambulance_id = $1`, ambulanceID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tripCols+` FROM trips WHERE ambulance_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ambulanceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *tripRepoPG) ActiveForAmbulance(ctx context.Context, ambulanceID string) (*Trip, error) {
	return r.scanTrip(r.conn(ctx).QueryRow(ctx, `
		SELECT `+tripCols+` FROM trips
		WHERE ambulance_id = $1 AND state NOT IN `+terminalStates+`
		ORDER BY created_at DESC LIMIT 1`, ambulanceID))
}

func (r *tripRepoPG) ListActive(ctx context.Context) ([]*Trip, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+tripCols+` FROM trips WHERE state NOT IN `+terminalStates+` ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, _, err := r.collect(rows, 0)
	return items, err
}

func (r *tripRepoPG) collect(rows pgx.Rows, total int) ([]*Trip, int, error) {
	var items []*Trip
	for rows.Next() {
		t, err := r.scanTrip(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
