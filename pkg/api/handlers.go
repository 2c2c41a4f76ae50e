package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/allsmog/zkcp-go/pkg/auth"
	"github.com/allsmog/zkcp-go/pkg/crypto/chaumpedersen"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds request bodies when Config.MaxBodyBytes is zero
const DefaultMaxBodyBytes = 64 << 10

// Handlers contains the HTTP handlers of the authentication gateway
type Handlers struct {
	service *auth.Service
	logger  *zap.Logger
	config  Config
}

// Config contains configuration for the gateway handlers
type Config struct {
	ServiceName  string // Reported by the health check
	MaxBodyBytes int64  // Request body limit
}

// NewHandlers creates new gateway handlers
func NewHandlers(service *auth.Service, logger *zap.Logger, config Config) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.ServiceName == "" {
		config.ServiceName = "zkcp-authd"
	}

	return &Handlers{
		service: service,
		logger:  logger,
		config:  config,
	}
}

// Register handles credential registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeRequest(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, "register", err)
		return
	}

	if err := h.service.Register(r.Context(), req.Identity, req.V1.Big(), req.V2.Big()); err != nil {
		h.fail(w, r, "register", err, zap.String("identity", req.Identity))
		return
	}

	h.logger.Info("credential registered", zap.String("identity", req.Identity))
	h.respond(w, r, http.StatusCreated, RegisterResponse{Status: "created"})
}

// IssueChallenge handles the commitment phase of a login
func (h *Handlers) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := decodeRequest(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, "challenge", err)
		return
	}

	id, c, err := h.service.IssueChallenge(r.Context(), req.Identity, req.R1.Big(), req.R2.Big())
	if err != nil {
		h.fail(w, r, "challenge", err, zap.String("identity", req.Identity))
		return
	}

	h.logger.Debug("challenge issued", zap.String("identity", req.Identity))
	h.respond(w, r, http.StatusOK, ChallengeResponse{ChallengeID: id, C: NewInt(c)})
}

// Verify handles the response phase of a login
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeRequest(w, r, h.config.MaxBodyBytes, &req); err != nil {
		h.fail(w, r, "verify", err)
		return
	}

	token, err := h.service.Verify(r.Context(), req.ChallengeID, req.S.Big())
	if err != nil {
		h.fail(w, r, "verify", err, zap.String("challenge_id", req.ChallengeID))
		return
	}

	h.logger.Info("login verified", zap.String("challenge_id", req.ChallengeID))
	h.respond(w, r, http.StatusOK, VerifyResponse{SessionToken: token})
}

// Params publishes the group parameters provers need
func (h *Handlers) Params(w http.ResponseWriter, r *http.Request) {
	params := h.service.Protocol().Params()
	h.respond(w, r, http.StatusOK, ParamsResponse{
		Name:    params.Name(),
		G:       NewInt(params.G()),
		H:       NewInt(params.H()),
		Modulus: NewInt(params.Modulus()),
		Order:   NewInt(params.Order()),
	})
}

// Health reports liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.config.ServiceName,
	})
}

// Stats reports store sizes
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, h.service.Stats())
}

// StatusFor maps an error from the authentication service to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMalformedBody),
		errors.Is(err, auth.ErrInvalidIdentity),
		errors.Is(err, chaumpedersen.ErrOperand):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrIdentityAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, auth.ErrIdentityNotFound),
		errors.Is(err, auth.ErrChallengeNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrVerificationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, op string, err error, fields ...zap.Field) {
	status := StatusFor(err)

	fields = append(fields,
		zap.String("op", op),
		zap.Int("status", status),
		zap.Error(err),
	)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
		msg = http.StatusText(status)
	} else {
		h.logger.Warn("request rejected", fields...)
	}

	h.respond(w, r, status, ErrorResponse{Error: msg})
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeResponse(w, r, status, v); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
