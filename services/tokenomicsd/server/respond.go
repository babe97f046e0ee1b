package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
)

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps the engine error taxonomy onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, coreerrors.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, coreerrors.ErrUnknownBucket):
		return http.StatusNotFound, "unknown_bucket"
	case errors.Is(err, coreerrors.ErrBucketLocked):
		return http.StatusConflict, "bucket_locked"
	case errors.Is(err, coreerrors.ErrSlippageExceeded):
		return http.StatusConflict, "slippage_exceeded"
	case errors.Is(err, coreerrors.ErrInsufficientLiquidity):
		return http.StatusConflict, "insufficient_liquidity"
	case errors.Is(err, coreerrors.ErrInsufficientSupply):
		return http.StatusConflict, "insufficient_supply"
	case errors.Is(err, coreerrors.ErrInsufficientAmount):
		return http.StatusUnprocessableEntity, "insufficient_amount"
	case errors.Is(err, coreerrors.ErrOverflow):
		return http.StatusBadRequest, "overflow"
	case errors.Is(err, coreerrors.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, coreerrors.ErrConservationViolation):
		return http.StatusInternalServerError, "conservation_violation"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}
