// Package http provides HTTP handlers for the envelope encryption operations.
package http

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	envelopeDomain "github.com/allisson/fieldcrypt/internal/envelope/domain"
	"github.com/allisson/fieldcrypt/internal/envelope/http/dto"
	envelopeUseCase "github.com/allisson/fieldcrypt/internal/envelope/usecase"
	"github.com/allisson/fieldcrypt/internal/httputil"
	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
	customValidation "github.com/allisson/fieldcrypt/internal/validation"
)

// EnvelopeHandler exposes the envelope engine to non-Go callers.
type EnvelopeHandler struct {
	engine envelopeUseCase.Engine
	logger *slog.Logger
}

// NewEnvelopeHandler creates a new envelope handler.
func NewEnvelopeHandler(engine envelopeUseCase.Engine, logger *slog.Logger) *EnvelopeHandler {
	return &EnvelopeHandler{
		engine: engine,
		logger: logger,
	}
}

// EncryptHandler seals a value under a fresh data key.
// POST /v1/envelope/encrypt - Returns 200 OK with the ciphertext tuple.
func (h *EnvelopeHandler) EncryptHandler(c *gin.Context) {
	var req dto.EncryptRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	plaintext, err := base64.StdEncoding.DecodeString(req.Plaintext)
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid base64 plaintext: %w", err), h.logger)
		return
	}
	defer kmsDomain.Wipe(plaintext)

	ctx := envelopeDomain.WithEntity(c.Request.Context(), req.Entity)
	result, err := h.engine.Encrypt(ctx, plaintext)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	response := dto.MapEncryptionResultToResponse(result)
	if req.Field != "" {
		columns, err := result.ToColumns(req.Field)
		if err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}
		response.Columns = columns
	}

	c.JSON(http.StatusOK, response)
}

// DecryptHandler opens a stored ciphertext tuple.
// POST /v1/envelope/decrypt - Returns 200 OK with the base64 plaintext.
// SECURITY: Plaintext is zeroed after the response is written.
func (h *EnvelopeHandler) DecryptHandler(c *gin.Context) {
	req, result, ok := h.bindEnvelope(c)
	if !ok {
		return
	}

	ctx := envelopeDomain.WithEntity(c.Request.Context(), req.Entity)
	plaintext, err := h.engine.Decrypt(ctx, result)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	defer kmsDomain.Wipe(plaintext)

	c.JSON(http.StatusOK, dto.DecryptResponse{Plaintext: plaintext})
}

// RotateHandler re-encrypts a stored ciphertext tuple under a new data key.
// POST /v1/envelope/rotate - Returns 200 OK with the new ciphertext tuple.
func (h *EnvelopeHandler) RotateHandler(c *gin.Context) {
	req, result, ok := h.bindEnvelope(c)
	if !ok {
		return
	}

	ctx := envelopeDomain.WithEntity(c.Request.Context(), req.Entity)
	rotated, err := h.engine.Rotate(ctx, result)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEncryptionResultToResponse(rotated))
}

// HashHandler derives the search hash of a value.
// POST /v1/envelope/hash - Returns 200 OK with the hex hash.
func (h *EnvelopeHandler) HashHandler(c *gin.Context) {
	var req dto.HashRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	hash, err := h.engine.Hash(req.Value)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.HashResponse{Hash: hash})
}

// bindEnvelope parses, validates and decodes a ciphertext tuple. It writes the error
// response itself and reports false on failure.
func (h *EnvelopeHandler) bindEnvelope(
	c *gin.Context,
) (*dto.EnvelopeRequest, *envelopeDomain.EncryptionResult, bool) {
	var req dto.EnvelopeRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return nil, nil, false
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return nil, nil, false
	}

	result, err := req.ToDomain()
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid base64 envelope: %w", err), h.logger)
		return nil, nil, false
	}

	return &req, result, true
}
