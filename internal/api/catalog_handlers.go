package api

import (
	"net/http"
	"strconv"
	"strings"

	"bikeservice/internal/domain"
)

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	activeOnly := true
	if raw := strings.TrimSpace(q.Get("active_only")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active_only must be a boolean")
			return
		}
		activeOnly = v
	}
	skip, err := intParam(q, "skip", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	limit, err := intParam(q, "limit", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	page, err := s.services.Catalog.ListServices(r.Context(), activeOnly, skip, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceList(page))
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	service, err := s.services.Catalog.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(service))
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	service, err := s.services.Catalog.CreateService(r.Context(), actor, domain.ServiceInput{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceResponse(service))
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	var req servicePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	service, err := s.services.Catalog.UpdateService(r.Context(), actor, r.PathValue("id"), domain.ServicePatch{
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		IsActive:        req.IsActive,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(service))
}

func (s *HTTPServer) handleDeactivateService(w http.ResponseWriter, r *http.Request, actor domain.Identity) {
	if err := s.services.Catalog.DeactivateService(r.Context(), actor, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
