package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"userhub/internal/access"
	"userhub/internal/httputil"
	"userhub/internal/logging"
	"userhub/internal/ratelimit"
	"userhub/internal/user"
)

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter *ratelimit.Limiter
	logger      *logging.Logger
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// SignUpResponse wraps the created account.
type SignUpResponse struct {
	User    *user.User `json:"user"`
	Message string     `json:"message"`
}

// SignInResponse carries the session token.
type SignInResponse struct {
	Token string `json:"token"`
}

// SignUp handles POST /auth/signup.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, "signup")
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded for signup", "ip", ip)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, "signup"); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}

	newUser, err := h.service.SignUp(r.Context(), req.Email, req.Name, req.Password, req.PasswordConfirmation)
	if err != nil {
		h.respondSignupError(w, logger, err)
		return
	}

	logger.Info("user signed up", "user_id", newUser.ID, "email", newUser.Email)

	respondJSON(w, SignUpResponse{
		User:    newUser,
		Message: "Account created successfully. Please check your inbox to confirm your email.",
	}, http.StatusCreated)
}

// CreateAdminUser handles POST /users. Mounted behind RequireAuth +
// RequireRole(ADMIN); shares the signup pipeline but assigns the ADMIN role.
func (h *Handler) CreateAdminUser(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid admin create request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	newUser, err := h.service.CreateUser(r.Context(), req.Email, req.Name, req.Password, req.PasswordConfirmation, user.RoleAdmin)
	if err != nil {
		h.respondSignupError(w, logger, err)
		return
	}

	logger.Info("admin user created", "user_id", newUser.ID, "email", newUser.Email)

	respondJSON(w, SignUpResponse{
		User:    newUser,
		Message: "Administrator created successfully.",
	}, http.StatusCreated)
}

// SignIn handles POST /auth/signin.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signin request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	token, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("signin failed: invalid credentials", "email", req.Email)
			respondError(w, "invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		logger.Error("signin failed: internal error", "error", err.Error())
		respondError(w, "failed to sign in", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	respondJSON(w, SignInResponse{Token: token}, http.StatusOK)
}

// Me handles GET /auth/me. Mounted behind RequireAuth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	respondJSON(w, map[string]any{
		"id":     principal.ID,
		"name":   principal.Name,
		"email":  principal.Email,
		"role":   principal.Role,
		"status": principal.Status,
	}, http.StatusOK)
}

// ConfirmEmail handles PATCH /auth/confirm/{token}.
func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(w, "missing confirmation token", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	if err := h.service.ConfirmEmail(r.Context(), token); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("email confirmation failed: unknown token")
			respondError(w, "invalid confirmation token", httputil.CodeNotFound, http.StatusNotFound)
			return
		}
		logger.Error("email confirmation failed: internal error", "error", err.Error())
		respondError(w, "failed to confirm email", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("email confirmed")
	respondJSON(w, map[string]string{"message": "Email confirmed successfully."}, http.StatusOK)
}

// SendRecoverEmail handles POST /auth/send-recover-email.
func (h *Handler) SendRecoverEmail(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RecoverEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid recover email request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	ip := getClientIP(r)
	exceeded, err := h.rateLimiter.CheckIPRateLimit(r.Context(), ip)
	if err != nil {
		logger.Error("failed to check IP rate limit", "error", err.Error())
	} else if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return
	}

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), req.Email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
	} else if onCooldown {
		logger.Warn("email on cooldown", "email", req.Email)
		respondError(w, "please wait before requesting another reset", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return
	}

	if err := h.rateLimiter.RecordIPRequest(r.Context(), ip); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	if err := h.rateLimiter.SetEmailCooldown(r.Context(), req.Email); err != nil {
		logger.Error("failed to set email cooldown", "error", err.Error())
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			logger.Warn("password reset requested for unknown email", "email", req.Email)
			respondError(w, "no account found for that email", httputil.CodeNotFound, http.StatusNotFound)
			return
		}
		logger.Error("password reset request failed: internal error", "error", err.Error())
		respondError(w, "failed to send recovery email", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"message": "A password reset link has been sent."}, http.StatusOK)
}

// ResetPassword handles PATCH /auth/reset-password/{token}.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	token := chi.URLParam(r, "token")
	if token == "" {
		respondError(w, "missing recovery token", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	var req PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid reset password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	err := h.service.ResetPassword(r.Context(), token, req.Password, req.PasswordConfirmation)
	if err != nil {
		h.respondPasswordError(w, logger, err, "password reset")
		return
	}

	logger.Info("password reset successfully")
	respondJSON(w, map[string]string{"message": "Password reset successfully. You can now sign in with your new password."}, http.StatusOK)
}

// ChangePassword handles PATCH /auth/change-password/{id}. Mounted behind
// RequireAuth; a caller may change their own password, an admin anyone's.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	principal, ok := access.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, "invalid user id", httputil.CodeValidationFailed, http.StatusBadRequest)
		return
	}

	if !access.CanAccess(principal, access.ActionSelfOrAdmin, targetID) {
		logger.Warn("password change denied", "principal_id", principal.ID, "target_id", targetID)
		respondError(w, "insufficient permissions", httputil.CodeForbidden, http.StatusForbidden)
		return
	}

	var req PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid change password request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if err := h.service.ChangePassword(r.Context(), targetID, req.Password, req.PasswordConfirmation); err != nil {
		h.respondPasswordError(w, logger, err, "password change")
		return
	}

	logger.Info("password changed", "target_id", targetID)
	respondJSON(w, map[string]string{"message": "Password changed successfully."}, http.StatusOK)
}

func (h *Handler) respondSignupError(w http.ResponseWriter, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, user.ErrDuplicateEmail):
		logger.Warn("signup failed: email already exists")
		respondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrPasswordMismatch):
		logger.Warn("signup failed: password mismatch")
		respondError(w, err.Error(), httputil.CodePasswordMismatch, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrEmailRequired),
		errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrPasswordRequired),
		errors.Is(err, ErrPasswordTooShort),
		errors.Is(err, ErrInvalidEmailFormat):
		logger.Warn("signup failed: validation error", "error", err.Error())
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
	default:
		logger.Error("signup failed: internal error", "error", err.Error())
		respondError(w, "failed to create account", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

func (h *Handler) respondPasswordError(w http.ResponseWriter, logger *logging.Logger, err error, op string) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		logger.Warn(op + " failed: unknown token or user")
		respondError(w, "invalid or unknown token", httputil.CodeNotFound, http.StatusNotFound)
	case errors.Is(err, ErrPasswordMismatch):
		logger.Warn(op + " failed: password mismatch")
		respondError(w, err.Error(), httputil.CodePasswordMismatch, http.StatusUnprocessableEntity)
	case errors.Is(err, ErrPasswordRequired), errors.Is(err, ErrPasswordTooShort):
		logger.Warn(op+" failed: validation error", "error", err.Error())
		respondError(w, err.Error(), httputil.CodeValidationFailed, http.StatusBadRequest)
	default:
		logger.Error(op+" failed: internal error", "error", err.Error())
		respondError(w, "failed to update password", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

func respondError(w http.ResponseWriter, message, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
