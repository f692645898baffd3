package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vaultgate/vaultgate/internal/face"
	"github.com/vaultgate/vaultgate/internal/platform/httpx"
	"github.com/vaultgate/vaultgate/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/send-otp", h.sendCode)
	r.Post("/verify-otp", h.verifyCode)
	r.Post("/save-face", h.saveFace)
	r.Post("/verify-face", h.verifyFace)
	r.Post("/identify-face", h.identifyFace)
}

// flexCode accepts both JSON strings and bare numbers, since clients
// send one-time codes either way.
type flexCode string

func (c *flexCode) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = flexCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = flexCode(n.String())
	return nil
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, "register", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":  user.ID.String(),
		"message": "Registered",
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":  user.ID.String(),
		"message": "Password OK",
	})
}

type sendCodeRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

func (h *Handler) sendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.IssueCode(r.Context(), uuid.MustParse(req.UserID)); err != nil {
		h.respondError(w, "send otp", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "OTP sent to your email"})
}

type verifyCodeRequest struct {
	UserID string   `json:"userId" validate:"required,uuid"`
	OTP    flexCode `json:"otp" validate:"required"`
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	signed, err := h.service.VerifyCode(r.Context(), uuid.MustParse(req.UserID), string(req.OTP))
	if err != nil {
		h.respondError(w, "verify otp", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   signed,
	})
}

type saveFaceRequest struct {
	UserID    string    `json:"userId" validate:"required,uuid"`
	Embedding []float64 `json:"embedding" validate:"required,min=1"`
}

func (h *Handler) saveFace(w http.ResponseWriter, r *http.Request) {
	var req saveFaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RegisterFace(r.Context(), uuid.MustParse(req.UserID), req.Embedding); err != nil {
		h.respondError(w, "save face", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Face registered successfully",
	})
}

type verifyFaceRequest struct {
	UserID    string    `json:"userId" validate:"required,uuid"`
	Embedding []float64 `json:"embedding" validate:"required,min=1"`
}

func (h *Handler) verifyFace(w http.ResponseWriter, r *http.Request) {
	var req verifyFaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.VerifyFace(r.Context(), uuid.MustParse(req.UserID), req.Embedding)
	if err != nil {
		h.respondError(w, "verify face", err)
		return
	}
	h.respondFaceLogin(w, result)
}

type identifyFaceRequest struct {
	Embedding []float64 `json:"embedding" validate:"required,min=1"`
}

func (h *Handler) identifyFace(w http.ResponseWriter, r *http.Request) {
	var req identifyFaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.IdentifyFace(r.Context(), req.Embedding)
	if err != nil {
		h.respondError(w, "identify face", err)
		return
	}
	h.respondFaceLogin(w, result)
}

func (h *Handler) respondFaceLogin(w http.ResponseWriter, result FaceLogin) {
	if !result.Success {
		// Mismatch is a normal outcome so clients can offer a retry.
		httpx.JSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Face mismatch",
		})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   result.Token,
		"userId":  result.UserID,
	})
}

// decode parses and validates the request body, writing a 400 problem
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "missing or malformed fields", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrEmailTaken):
		httpx.Problem(w, http.StatusBadRequest, "user already exists", "")
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusBadRequest, "invalid email or password", "")
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "user not found", "")
	case errors.Is(err, shared.ErrCodeExpired):
		httpx.Problem(w, http.StatusBadRequest, "otp expired", "")
	case errors.Is(err, shared.ErrCodeMismatch):
		httpx.Problem(w, http.StatusBadRequest, "incorrect otp", "")
	case errors.Is(err, face.ErrDimensionMismatch), errors.Is(err, face.ErrEmptyEmbedding):
		httpx.Problem(w, http.StatusBadRequest, "invalid embedding", err.Error())
	case errors.Is(err, shared.ErrTooManyAttempts):
		httpx.Problem(w, http.StatusTooManyRequests, "too many attempts", "")
	case errors.Is(err, shared.ErrDelivery):
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "error sending otp email", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "server error", "")
	}
}
