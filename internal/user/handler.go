package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"userhub/internal/access"
	"userhub/internal/httputil"
	"userhub/internal/logging"
)

// Handler contains HTTP handlers for the /users endpoints. All routes are
// mounted behind RequireAuth; admin-only routes additionally behind
// RequireRole.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// UpdateUserRequest is the PATCH /users/{id} body. Absent fields stay
// unchanged.
type UpdateUserRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Role   *string `json:"role"`
	Status *bool   `json:"status"`
}

// Validate will run validation rules
func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Name,
			validation.NilOrNotEmpty,
			validation.Length(1, 200),
		),
		validation.Field(
			&r.Email,
			validation.NilOrNotEmpty,
			is.Email,
		),
		validation.Field(
			&r.Role,
			validation.In(string(RoleUser), string(RoleAdmin)),
		),
	)
}

// SearchResponse is the paginated listing payload.
type SearchResponse struct {
	Items []Summary `json:"items"`
	Total int       `json:"total"`
}

// List handles GET /users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	principal, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	filter := filterFromQuery(r)

	items, total, err := h.service.Search(r.Context(), principal, filter)
	if err != nil {
		if errors.Is(err, access.ErrForbidden) {
			httputil.RespondErrorWithCode(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
			return
		}
		logger.Error("user search failed", "error", err.Error())
		httputil.RespondErrorWithCode(w, "failed to search users", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, SearchResponse{Items: items, Total: total}, http.StatusOK)
}

// Get handles GET /users/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	principal, targetID, ok := h.requestTarget(w, r)
	if !ok {
		return
	}

	u, err := h.service.Get(r.Context(), principal, targetID)
	if err != nil {
		h.respondServiceError(w, logger, err, "get user")
		return
	}

	httputil.RespondJSON(w, u, http.StatusOK)
}

// Update handles PATCH /users/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	principal, targetID, ok := h.requestTarget(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update user request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	input := UpdateInput{
		Name:   req.Name,
		Email:  req.Email,
		Status: req.Status,
	}
	if req.Role != nil {
		role := Role(*req.Role)
		input.Role = &role
	}

	u, err := h.service.Update(r.Context(), principal, targetID, input)
	if err != nil {
		h.respondServiceError(w, logger, err, "update user")
		return
	}

	httputil.RespondJSON(w, u, http.StatusOK)
}

// Delete handles DELETE /users/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	principal, targetID, ok := h.requestTarget(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), principal, targetID); err != nil {
		h.respondServiceError(w, logger, err, "delete user")
		return
	}

	httputil.RespondJSON(w, map[string]string{"message": "User deleted successfully."}, http.StatusOK)
}

func (h *Handler) requestTarget(w http.ResponseWriter, r *http.Request) (*access.Principal, uuid.UUID, bool) {
	principal, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondErrorWithCode(w, "invalid user id", httputil.CodeValidationFailed, http.StatusBadRequest)
		return nil, uuid.Nil, false
	}

	return principal, targetID, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, logger *logging.Logger, err error, op string) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		logger.Warn(op + " denied")
		httputil.RespondErrorWithCode(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		httputil.RespondErrorWithCode(w, "user not found", httputil.CodeNotFound, http.StatusNotFound)
	case errors.Is(err, ErrDuplicateEmail):
		logger.Warn(op + " failed: email already exists")
		httputil.RespondErrorWithCode(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidEmail):
		logger.Warn(op+" failed: validation error", "error", err.Error())
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// filterFromQuery builds a SearchFilter from the listing query parameters.
// Clamping and whitelisting happen in Normalize, inside the repository.
func filterFromQuery(r *http.Request) *SearchFilter {
	q := r.URL.Query()

	filter := &SearchFilter{
		Email: q.Get("email"),
		Name:  q.Get("name"),
		Sort:  ParseSort(q.Get("sort")),
	}

	if role := q.Get("role"); role != "" {
		filter.Role = Role(role)
	}
	if status := q.Get("status"); status != "" {
		if parsed, err := strconv.ParseBool(status); err == nil {
			filter.Status = &parsed
		}
	}
	if page := q.Get("page"); page != "" {
		if parsed, err := strconv.Atoi(page); err == nil {
			filter.Page = parsed
		}
	}
	if limit := q.Get("limit"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil {
			filter.Limit = parsed
		}
	}

	return filter
}
