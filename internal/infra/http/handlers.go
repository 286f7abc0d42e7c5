package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hsmtrust/internal/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type verifyRequest struct {
	Signature       string `json:"signature"`
	HSMIdentity     string `json:"hsm_identity"`
	HSMGenerationID string `json:"hsm_generation_id"`
	Message         string `json:"message"`
}

type verifyResponse struct {
	Verified  bool   `json:"verified"`
	CheckedAt string `json:"checked_at"`
}

type accessKeyResponse struct {
	Identity  string `json:"identity"`
	PublicKey string `json:"public_key"`
}

func (s *Server) handleVerify(c *gin.Context) {
	if s.verify == nil {
		writeError(c, domain.ErrNotFound)
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.Signature == "" || req.HSMIdentity == "" || req.HSMGenerationID == "" || req.Message == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "signature, hsm_identity, hsm_generation_id and message are required")
		return
	}

	if !s.enforceRateLimit(c, "verify", req.HSMIdentity) {
		return
	}

	err := s.verify.Verify(c.Request.Context(), req.Signature, req.HSMIdentity, req.HSMGenerationID, req.Message)
	if err != nil {
		if s.audit != nil {
			_, code := statusCodeOf(err)
			s.audit.EmitKeyLogRejected(c.Request.Context(), req.HSMIdentity, req.HSMGenerationID, code)
		}
		writeError(c, err)
		return
	}

	if s.audit != nil {
		s.audit.EmitKeyLogVerified(c.Request.Context(), req.HSMIdentity, req.HSMGenerationID)
	}
	c.JSON(http.StatusOK, verifyResponse{
		Verified:  true,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAccessKey(c *gin.Context) {
	if s.access == nil {
		writeError(c, domain.ErrNotFound)
		return
	}

	identity := c.Param("identity")
	if identity == "" {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "identity is required")
		return
	}

	if !s.enforceRateLimit(c, "access-keys", identity) {
		return
	}

	publicKey, err := s.access.Get(c.Request.Context(), identity)
	if err != nil {
		if s.audit != nil {
			_, code := statusCodeOf(err)
			s.audit.EmitAccessKeyRead(c.Request.Context(), identity, domain.AuditResultFailure, code)
		}
		writeError(c, err)
		return
	}

	if s.audit != nil {
		s.audit.EmitAccessKeyRead(c.Request.Context(), identity, domain.AuditResultSuccess, "")
	}
	c.JSON(http.StatusOK, accessKeyResponse{
		Identity:  identity,
		PublicKey: publicKey,
	})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

// statusCodeOf maps the verification error taxonomy to transport responses.
// Request-level failures are 4xx; a key log that cannot be validated is the
// upstream's fault and maps to 503.
func statusCodeOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSignatureInvalid):
		return http.StatusUnauthorized, "SIGNATURE_INVALID"
	case errors.Is(err, domain.ErrIncorrectIdentity):
		return http.StatusUnauthorized, "INCORRECT_IDENTITY"
	case errors.Is(err, domain.ErrIncorrectPurpose):
		return http.StatusUnauthorized, "INCORRECT_PURPOSE"
	case errors.Is(err, domain.ErrExpiredKey):
		return http.StatusUnauthorized, "EXPIRED_KEY"
	case errors.Is(err, domain.ErrIdentityNotFound):
		return http.StatusNotFound, "IDENTITY_NOT_FOUND"
	case errors.Is(err, domain.ErrNoValidKey):
		return http.StatusNotFound, "NO_VALID_KEY"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrNoKeysFound):
		return http.StatusServiceUnavailable, "NO_KEYS_FOUND"
	case errors.Is(err, domain.ErrMissingBody):
		return http.StatusServiceUnavailable, "MISSING_BODY"
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusServiceUnavailable, "EXTRACTION_FAILED"
	case errors.Is(err, domain.ErrSelfReferenceMismatch):
		return http.StatusServiceUnavailable, "SELF_REFERENCE_MISMATCH"
	case errors.Is(err, domain.ErrBadSequenceNumber):
		return http.StatusServiceUnavailable, "BAD_SEQUENCE_NUMBER"
	case errors.Is(err, domain.ErrBrokenChain):
		return http.StatusServiceUnavailable, "BROKEN_CHAIN"
	case errors.Is(err, domain.ErrBadCommitment):
		return http.StatusServiceUnavailable, "BAD_COMMITMENT"
	case errors.Is(err, domain.ErrInvalidTimestamp):
		return http.StatusServiceUnavailable, "INVALID_TIMESTAMP"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusCodeOf(err)
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
