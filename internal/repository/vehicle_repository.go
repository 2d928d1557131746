package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/fleet-inventory/internal/model"
)

// VehicleRepo serves cars and motorcycles; the two tables share one shape.
type VehicleRepo struct {
	db    *sql.DB
	kind  model.VehicleKind
	table string
}

// NewCarRepo returns a VehicleRepo over the `cars` table.
func NewCarRepo(db *sql.DB) *VehicleRepo {
	return &VehicleRepo{db: db, kind: model.KindCar, table: "cars"}
}

// NewMotorcycleRepo returns a VehicleRepo over the `motorcycles` table.
func NewMotorcycleRepo(db *sql.DB) *VehicleRepo {
	return &VehicleRepo{db: db, kind: model.KindMotorcycle, table: "motorcycles"}
}

// Kind reports which vehicle table the repository serves.
func (r *VehicleRepo) Kind() model.VehicleKind { return r.kind }

func (r *VehicleRepo) selectJoined() string {
	return fmt.Sprintf(`SELECT v.id, v.brand, v.model, v.year, v.color, v.fuel_type, v.transmission,
		v.mileage, v.price, v.engine_id,
		e.id, e.brand, e.fuel_type, e.power, e.torque, e.displacement
		FROM %s v JOIN engines e ON e.id = v.engine_id`, r.table)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(s rowScanner) (model.Vehicle, error) {
	var (
		v model.Vehicle
		e model.Engine
	)
	err := s.Scan(&v.ID, &v.Brand, &v.Model, &v.Year, &v.Color, &v.FuelType, &v.Transmission,
		&v.Mileage, &v.Price, &v.EngineID,
		&e.ID, &e.Brand, &e.FuelType, &e.Power, &e.Torque, &e.Displacement)
	if err != nil {
		return model.Vehicle{}, err
	}
	v.Engine = &e
	return v, nil
}

// GetByID loads a vehicle with its engine.  It returns ErrNotFound when no
// row matches.
func (r *VehicleRepo) GetByID(ctx context.Context, id uint64) (*model.Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRowContext(ctx, r.selectJoined()+" WHERE v.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// List returns one page of vehicles ordered by id plus the total row count.
func (r *VehicleRepo) List(ctx context.Context, limit, offset int) ([]model.Vehicle, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.table).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx, r.selectJoined()+" ORDER BY v.id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []model.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Create inserts the vehicle and fills in its ID.  A dangling engine_id
// surfaces as ErrEngineNotFound.
func (r *VehicleRepo) Create(ctx context.Context, v *model.Vehicle) error {
	q := fmt.Sprintf(`INSERT INTO %s (brand, model, year, color, fuel_type, transmission, mileage, price, engine_id)
		VALUES (?,?,?,?,?,?,?,?,?)`, r.table)
	res, err := r.db.ExecContext(ctx, q,
		v.Brand, v.Model, v.Year, v.Color, v.FuelType, v.Transmission, v.Mileage, v.Price, v.EngineID)
	if err != nil {
		return mapForeignKey(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	v.ID = uint64(id)
	return nil
}

// Update overwrites every attribute of the vehicle.
func (r *VehicleRepo) Update(ctx context.Context, v *model.Vehicle) error {
	q := fmt.Sprintf(`UPDATE %s SET brand=?, model=?, year=?, color=?, fuel_type=?, transmission=?,
		mileage=?, price=?, engine_id=? WHERE id=?`, r.table)
	res, err := r.db.ExecContext(ctx, q,
		v.Brand, v.Model, v.Year, v.Color, v.FuelType, v.Transmission, v.Mileage, v.Price, v.EngineID, v.ID)
	if err != nil {
		return mapForeignKey(err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// zero rows also means "nothing changed"
	var ok bool
	if err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM "+r.table+" WHERE id = ?)", v.ID).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete removes the vehicle.
func (r *VehicleRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+r.table+" WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapForeignKey(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlNoReferencedRow {
		return ErrEngineNotFound
	}
	return err
}
