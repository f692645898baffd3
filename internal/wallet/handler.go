package wallet

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vaultgate/vaultgate/internal/platform/httpx"
	"github.com/vaultgate/vaultgate/internal/shared"
)

// Handler wires HTTP endpoints for wallet storage. All routes sit
// behind the bearer-token gate; the identity in context scopes every
// query.
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

// MountRoutes registers wallet routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/save", h.save)
	r.Get("/all", h.list)
	r.Get("/encrypted", h.legacySeed)
	r.Delete("/delete", h.deleteLegacySeed)
	r.Get("/{index}", h.get)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(id.UserID)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
		return uuid.Nil, false
	}
	return userID, true
}

type saveRequest struct {
	Cipher []byte `json:"cipher" validate:"required"`
	IV     []byte `json:"iv" validate:"required"`
	Label  string `json:"label"`
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "missing encrypted data", "")
		return
	}
	entries, err := h.service.Save(r.Context(), userID, req.Cipher, req.IV, req.Label)
	if err != nil {
		h.respondError(w, "save wallet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Wallet saved successfully!",
		"wallets": entries,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	entries, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.respondError(w, "list wallets", err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"wallets": entries})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "wallet not found", "")
		return
	}
	entry, err := h.service.Get(r.Context(), userID, index)
	if err != nil {
		h.respondError(w, "get wallet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"wallet": entry})
}

func (h *Handler) legacySeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	seed, err := h.service.LegacySeed(r.Context(), userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "no wallet stored", "")
			return
		}
		h.respondError(w, "get legacy seed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"encryptedSeed": seed.Seed,
		"createdAt":     seed.CreatedAt,
	})
}

func (h *Handler) deleteLegacySeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteLegacySeed(r.Context(), userID); err != nil {
		h.respondError(w, "delete legacy seed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Wallet removed"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrMissingBlob):
		httpx.Problem(w, http.StatusBadRequest, "missing encrypted data", "")
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "wallet not found", "")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "server error", "")
	}
}
