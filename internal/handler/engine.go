package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fleet-inventory/internal/model"
	"github.com/iliyamo/fleet-inventory/internal/repository"
)

// EngineStore is satisfied by *repository.EngineRepo.
type EngineStore interface {
	EngineChecker
	GetByID(ctx context.Context, id uint64) (*model.Engine, error)
	List(ctx context.Context, limit, offset int) ([]model.Engine, int, error)
	Create(ctx context.Context, e *model.Engine) error
	Update(ctx context.Context, e *model.Engine) error
	Delete(ctx context.Context, id uint64) error
}

type engineReq struct {
	Brand        string `json:"brand" validate:"required,max=100"`
	FuelType     string `json:"fuelType" validate:"max=50"`
	Power        string `json:"power" validate:"max=50"`
	Torque       string `json:"torque" validate:"max=50"`
	Displacement string `json:"displacement" validate:"max=50"`
}

func (r engineReq) toModel(id uint64) *model.Engine {
	return &model.Engine{
		ID:           id,
		Brand:        r.Brand,
		FuelType:     r.FuelType,
		Power:        r.Power,
		Torque:       r.Torque,
		Displacement: r.Displacement,
	}
}

// EngineHandler serves /api/engines.  Deleting an engine also deletes the
// vehicles that reference it.
type EngineHandler struct {
	engines EngineStore
}

func NewEngineHandler(engines EngineStore) *EngineHandler {
	return &EngineHandler{engines: engines}
}

func (h *EngineHandler) List(c echo.Context) error {
	page, size, err := pageParams(c)
	if err != nil {
		return err
	}
	items, total, err := h.engines.List(c.Request().Context(), size, (page-1)*size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.Page[model.Engine]{Items: items, Page: page, PageSize: size, Total: total})
}

func (h *EngineHandler) Get(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	e, err := h.engines.GetByID(c.Request().Context(), id)
	if err != nil {
		return engineError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *EngineHandler) Create(c echo.Context) error {
	var req engineReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e := req.toModel(0)
	if err := h.engines.Create(c.Request().Context(), e); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *EngineHandler) Update(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req engineReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e := req.toModel(id)
	if err := h.engines.Update(c.Request().Context(), e); err != nil {
		return engineError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *EngineHandler) Delete(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.engines.Delete(c.Request().Context(), id); err != nil {
		return engineError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func engineError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "engine not found")
	}
	return err
}
