package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-inventory/internal/model"
	"github.com/iliyamo/fleet-inventory/internal/repository"
)

// VehicleStore is satisfied by *repository.VehicleRepo.
type VehicleStore interface {
	Kind() model.VehicleKind
	GetByID(ctx context.Context, id uint64) (*model.Vehicle, error)
	List(ctx context.Context, limit, offset int) ([]model.Vehicle, int, error)
	Create(ctx context.Context, v *model.Vehicle) error
	Update(ctx context.Context, v *model.Vehicle) error
	Delete(ctx context.Context, id uint64) error
}

// EngineChecker is satisfied by *repository.EngineRepo.
type EngineChecker interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

type vehicleReq struct {
	Brand        string `json:"brand" validate:"required,max=100"`
	Model        string `json:"model" validate:"required,max=100"`
	Year         string `json:"year" validate:"max=10"`
	Color        string `json:"color" validate:"max=50"`
	FuelType     string `json:"fuelType" validate:"max=50"`
	Transmission string `json:"transmission" validate:"max=50"`
	Mileage      string `json:"mileage" validate:"max=50"`
	Price        string `json:"price" validate:"max=50"`
	EngineID     uint64 `json:"engineId" validate:"required"`
}

func (r vehicleReq) toModel(id uint64) *model.Vehicle {
	return &model.Vehicle{
		ID:           id,
		Brand:        r.Brand,
		Model:        r.Model,
		Year:         r.Year,
		Color:        r.Color,
		FuelType:     r.FuelType,
		Transmission: r.Transmission,
		Mileage:      r.Mileage,
		Price:        r.Price,
		EngineID:     r.EngineID,
	}
}

// VehicleHandler serves one vehicle collection (cars or motorcycles).
type VehicleHandler struct {
	vehicles VehicleStore
	engines  EngineChecker
	noun     string
}

func NewVehicleHandler(vehicles VehicleStore, engines EngineChecker) *VehicleHandler {
	noun := "car"
	if vehicles.Kind() == model.KindMotorcycle {
		noun = "motorcycle"
	}
	return &VehicleHandler{vehicles: vehicles, engines: engines, noun: noun}
}

// List returns one page of vehicles with their engines.
func (h *VehicleHandler) List(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return err
	}
	items, total, err := h.vehicles.List(c.Request().Context(), size, (page-1)*size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Page[model.Vehicle]{Items: items, Page: page, PageSize: size, Total: total})
}

// Get returns one vehicle.
func (h *VehicleHandler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	v, err := h.vehicles.GetByID(c.Request().Context(), id)
	if err != nil {
		return h.storeError(err)
	}
	return c.JSON(http.StatusOK, v)
}

// Create inserts a vehicle; the engine must exist.
func (h *VehicleHandler) Create(c echo.Context) error {
	var req vehicleReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	ok, err := h.engines.Exists(ctx, req.EngineID)
	if err != nil {
		return err
	}
	if !ok {
		return fail(c, http.StatusBadRequest, repository.ErrEngineNotFound.Error())
	}

	v := req.toModel(0)
	if err := h.vehicles.Create(ctx, v); err != nil {
		return h.storeError(err)
	}
	saved, err := h.vehicles.GetByID(ctx, v.ID)
	if err != nil {
		return h.storeError(err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// Update replaces every attribute of a vehicle.  A missing vehicle is a 404
// before a missing engine is a 400.
func (h *VehicleHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req vehicleReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.vehicles.Update(ctx, req.toModel(id)); err != nil {
		return h.storeError(err)
	}
	saved, err := h.vehicles.GetByID(ctx, id)
	if err != nil {
		return h.storeError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// Delete removes a vehicle.
func (h *VehicleHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.vehicles.Delete(c.Request().Context(), id); err != nil {
		return h.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *VehicleHandler) storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, h.noun+" not found")
	case errors.Is(err, repository.ErrEngineNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, repository.ErrEngineNotFound.Error())
	}
	return err
}
