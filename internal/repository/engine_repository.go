package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/fleet-inventory/internal/model"
)

// EngineRepo encapsulates the queries on `engines`.
type EngineRepo struct {
	db *sql.DB
}

func NewEngineRepo(db *sql.DB) *EngineRepo {
	return &EngineRepo{db: db}
}

const engineColumns = "id, brand, fuel_type, power, torque, displacement"

// Create inserts an engine and fills in its ID.
func (r *EngineRepo) Create(ctx context.Context, e *model.Engine) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO engines (brand, fuel_type, power, torque, displacement) VALUES (?,?,?,?,?)",
		e.Brand, e.FuelType, e.Power, e.Torque, e.Displacement)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID returns ErrNotFound when no row matches.
func (r *EngineRepo) GetByID(ctx context.Context, id uint64) (*model.Engine, error) {
	var e model.Engine
	err := r.db.QueryRowContext(ctx, "SELECT "+engineColumns+" FROM engines WHERE id = ?", id).
		Scan(&e.ID, &e.Brand, &e.FuelType, &e.Power, &e.Torque, &e.Displacement)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Exists reports whether an engine with the id is present.
func (r *EngineRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM engines WHERE id = ?)", id).Scan(&ok)
	return ok, err
}

// List returns one page of engines ordered by id plus the total row count.
func (r *EngineRepo) List(ctx context.Context, limit, offset int) ([]model.Engine, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM engines").Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+engineColumns+" FROM engines ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Engine{}
	for rows.Next() {
		var e model.Engine
		if err := rows.Scan(&e.ID, &e.Brand, &e.FuelType, &e.Power, &e.Torque, &e.Displacement); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Update overwrites every attribute of the engine.
func (r *EngineRepo) Update(ctx context.Context, e *model.Engine) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE engines SET brand=?, fuel_type=?, power=?, torque=?, displacement=? WHERE id=?",
		e.Brand, e.FuelType, e.Power, e.Torque, e.Displacement, e.ID)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, e.ID)
}

// Delete removes the engine; vehicles using it go with it (ON DELETE CASCADE).
func (r *EngineRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM engines WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// checkAffected distinguishes "row missing" from "values unchanged", which
// MySQL both reports as zero affected rows.
func (r *EngineRepo) checkAffected(ctx context.Context, res sql.Result, id uint64) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
