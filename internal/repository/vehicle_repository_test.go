package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fleet-inventory/internal/model"
)

var vehicleCols = []string{"id", "brand", "model", "year", "color", "fuel_type", "transmission",
	"mileage", "price", "engine_id", "e_id", "e_brand", "e_fuel_type", "power", "torque", "displacement"}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestVehicleRepo_GetByID(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewMotorcycleRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM motorcycles v JOIN engines e ON e.id = v.engine_id WHERE v.id = ?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(vehicleCols).
			AddRow(7, "Honda", "CBR", "2020", "red", "petrol", "manual", "1000", "9000", 3,
				3, "Honda", "petrol", "100hp", "80Nm", "600cc"))

	v, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "CBR", v.Model)
	require.NotNil(t, v.Engine)
	assert.Equal(t, "600cc", v.Engine.Displacement)
	assert.Equal(t, model.KindMotorcycle, repo.Kind())
}

func TestVehicleRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewCarRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cars v")).WillReturnRows(sqlmock.NewRows(vehicleCols))

	_, err := repo.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVehicleRepo_List(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewCarRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM cars")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY v.id LIMIT ? OFFSET ?")).
		WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(vehicleCols).
			AddRow(3, "Dacia", "Logan", "2019", "white", "diesel", "manual", "1", "2", 1,
				1, "Renault", "diesel", "90hp", "200Nm", "1.5"))

	items, total, err := repo.List(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Logan", items[0].Model)
}

func TestVehicleRepo_Create_MissingEngine(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewCarRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cars")).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key"})

	err := repo.Create(context.Background(), &model.Vehicle{Brand: "X", EngineID: 99})
	assert.ErrorIs(t, err, ErrEngineNotFound)
}

func TestVehicleRepo_Create(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewCarRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cars")).
		WillReturnResult(sqlmock.NewResult(12, 1))

	v := &model.Vehicle{Brand: "Dacia", Model: "Duster", EngineID: 1}
	require.NoError(t, repo.Create(context.Background(), v))
	assert.Equal(t, uint64(12), v.ID)
}

func TestVehicleRepo_Update_Unchanged(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewCarRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cars SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM cars WHERE id = ?)")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))

	require.NoError(t, repo.Update(context.Background(), &model.Vehicle{ID: 4}))
}

func TestVehicleRepo_Update_Missing(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewCarRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cars SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))

	assert.ErrorIs(t, repo.Update(context.Background(), &model.Vehicle{ID: 4}), ErrNotFound)
}

func TestVehicleRepo_Delete(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewMotorcycleRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM motorcycles WHERE id = ?")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), 5), ErrNotFound)
}

func TestEngineRepo_CRUD(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewEngineRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO engines")).
		WithArgs("BMW", "petrol", "300hp", "400Nm", "3.0").
		WillReturnResult(sqlmock.NewResult(9, 1))
	e := &model.Engine{Brand: "BMW", FuelType: "petrol", Power: "300hp", Torque: "400Nm", Displacement: "3.0"}
	require.NoError(t, repo.Create(ctx, e))
	assert.Equal(t, uint64(9), e.ID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM engines WHERE id = ?)")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))
	ok, err := repo.Exists(ctx, 9)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM engines WHERE id = ?")).
		WithArgs(uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(ctx, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}
