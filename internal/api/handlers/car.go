package handlers

import (
	"net/http"
	"strconv"

	"github.com/dom/car-marketplace/internal/api/middleware"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/service"
)

type CarHandler struct {
	carService *service.CarService
}

func NewCarHandler(carService *service.CarService) *CarHandler {
	return &CarHandler{carService: carService}
}

type ChangeStatusRequest struct {
	Status domain.CarStatus `json:"status"`
}

// List returns the public catalogue filtered by the query string
func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.CarFilter{
		Brand:    q.Get("brand"),
		Location: q.Get("location"),
		FuelType: q.Get("fuelType"),
	}

	var err error
	if filter.MinPrice, err = optionalInt64Query(r, "minPrice"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.MaxPrice, err = optionalInt64Query(r, "maxPrice"); err != nil {
		writeError(w, r, err)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if filter.Limit, err = strconv.Atoi(raw); err != nil || filter.Limit < 0 {
			writeError(w, r, domain.ValidationFailed("limit", "limit must be a positive number"))
			return
		}
	}

	cars, err := h.carService.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cars)
}

func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	viewer := middleware.OptionalUserID(r.Context())
	car, err := h.carService.Get(r.Context(), viewer, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, car)
}

func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.CreateCarInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	car, err := h.carService.Create(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, car)
}

// Mine returns every listing of the caller in any status
func (h *CarHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	cars, err := h.carService.ListByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cars)
}

func (h *CarHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	car, err := h.carService.ChangeStatus(r.Context(), userID, id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, car)
}

func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.carService.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
