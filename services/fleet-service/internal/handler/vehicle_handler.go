package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fleetmanager/backend/gomicro/apperror"
	"github.com/fleetmanager/backend/gomicro/middleware"
	"github.com/fleetmanager/backend/gomicro/paging"
	"github.com/fleetmanager/backend/services/fleet-service/internal/model"
	"github.com/fleetmanager/backend/services/fleet-service/internal/repository"
	"github.com/fleetmanager/backend/services/fleet-service/internal/service"
	"github.com/fleetmanager/backend/services/fleet-service/prometheus"
	"github.com/labstack/echo/v4"
)

// VehicleHandler serves the /api/vehicles routes.
type VehicleHandler struct {
	vehicles *service.VehicleService
	metrics  *prometheus.Metrics
}

// NewVehicleHandler creates a VehicleHandler.
func NewVehicleHandler(vehicles *service.VehicleService, metrics *prometheus.Metrics) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles, metrics: metrics}
}

// Register mounts the routes on g.
func (h *VehicleHandler) Register(g *echo.Group) {
	writers := middleware.RequireRole("ADMIN", "MANAGER")

	g.POST("", h.CreateVehicle, writers)
	g.GET("", h.ListVehicles)
	g.GET("/:id", h.GetVehicle)
	g.PUT("/:id", h.UpdateVehicle, writers)
	g.DELETE("/:id", h.DeleteVehicle, middleware.RequireRole("ADMIN"))
}

// CreateVehicle creates a vehicle for the current tenant
func (h *VehicleHandler) CreateVehicle(c echo.Context) (err error) {
	defer func() { h.metrics.RecordVehicleOperation("create", err) }()

	req, err := bindVehicle(c)
	if err != nil {
		return err
	}
	userID, _ := middleware.UserID(c)

	defer h.metrics.TrackDBOperation("insert")(time.Now())
	v, err := h.vehicles.Create(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

// ListVehicles lists the current tenant's vehicles
func (h *VehicleHandler) ListVehicles(c echo.Context) (err error) {
	defer func() { h.metrics.RecordVehicleOperation("list", err) }()

	filter := repository.VehicleFilter{
		Status: model.VehicleStatus(c.QueryParam("status")),
		Type:   model.VehicleType(c.QueryParam("type")),
		Search: c.QueryParam("search"),
	}
	p := paging.Parse(c, "created_at", service.SortColumns...)

	defer h.metrics.TrackDBOperation("query")(time.Now())
	page, err := h.vehicles.List(c.Request().Context(), filter, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// GetVehicle returns one of the current tenant's vehicles
func (h *VehicleHandler) GetVehicle(c echo.Context) (err error) {
	defer func() { h.metrics.RecordVehicleOperation("get", err) }()

	id, err := vehicleID(c)
	if err != nil {
		return err
	}

	defer h.metrics.TrackDBOperation("query")(time.Now())
	v, err := h.vehicles.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// UpdateVehicle replaces one of the current tenant's vehicles
func (h *VehicleHandler) UpdateVehicle(c echo.Context) (err error) {
	defer func() { h.metrics.RecordVehicleOperation("update", err) }()

	id, err := vehicleID(c)
	if err != nil {
		return err
	}
	req, err := bindVehicle(c)
	if err != nil {
		return err
	}
	userID, _ := middleware.UserID(c)

	defer h.metrics.TrackDBOperation("update")(time.Now())
	v, err := h.vehicles.Update(c.Request().Context(), id, userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

// DeleteVehicle removes one of the current tenant's vehicles
func (h *VehicleHandler) DeleteVehicle(c echo.Context) (err error) {
	defer func() { h.metrics.RecordVehicleOperation("delete", err) }()

	id, err := vehicleID(c)
	if err != nil {
		return err
	}

	defer h.metrics.TrackDBOperation("delete")(time.Now())
	if err := h.vehicles.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func bindVehicle(c echo.Context) (service.VehicleRequest, error) {
	var req service.VehicleRequest
	if err := c.Bind(&req); err != nil {
		return req, apperror.BadRequest("Invalid request data")
	}
	if err := c.Validate(&req); err != nil {
		return req, err
	}
	return req, nil
}

func vehicleID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, apperror.BadRequest("Invalid vehicle ID")
	}
	return uint(id), nil
}
