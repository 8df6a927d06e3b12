// Package api defines the store's boundary contract for an HTTP layer:
// response envelopes, the recursive folder tree shape, note request
// decoding, and the mapping from error kinds to status codes.
package api

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/notevault/internal/common"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type SuccessEnvelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Details string `json:"details"`
}

type ErrorEnvelope struct {
	Status    string            `json:"status"`
	ErrorCode string            `json:"errorCode"`
	Details   string            `json:"details"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func Success(data any, details string) SuccessEnvelope {
	return SuccessEnvelope{Status: StatusSuccess, Data: data, Details: details}
}

// StatusFor maps an error to an HTTP status by kind.
func StatusFor(err error) int {
	switch common.KindOf(err) {
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindInvalidOperation, common.KindCycleDetected:
		return http.StatusUnprocessableEntity
	case common.KindCodec, common.KindValidation:
		return http.StatusBadRequest
	case common.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case common.KindConflict:
		return http.StatusConflict
	case common.KindAuthenticationFailed, common.KindCrypto, common.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// ErrorCode is the stable errorCode string of a kind.
func ErrorCode(k common.Kind) string {
	switch k {
	case common.KindNotFound:
		return "NOT_FOUND"
	case common.KindInvalidOperation:
		return "INVALID_OPERATION"
	case common.KindCycleDetected:
		return "CYCLE_DETECTED"
	case common.KindAuthenticationFailed:
		return "AUTHENTICATION_FAILED"
	case common.KindCodec:
		return "CODEC_ERROR"
	case common.KindPayloadTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case common.KindCrypto:
		return "CRYPTO_ERROR"
	case common.KindConflict:
		return "CONFLICT"
	case common.KindValidation:
		return "VALIDATION_ERROR"
	case common.KindInternal:
		return "INTERNAL_ERROR"
	}
	return "INTERNAL_ERROR"
}

// ErrorResponse builds the status and envelope for err. Server-side kinds
// get a generic message so storage and crypto details stay in the logs.
func ErrorResponse(err error) (int, ErrorEnvelope) {
	kind := common.KindOf(err)
	status := StatusFor(err)

	env := ErrorEnvelope{Status: StatusError, ErrorCode: ErrorCode(kind), Details: kind.String()}
	if status < http.StatusInternalServerError {
		env.Details = err.Error()
		var ce *common.Error
		if errors.As(err, &ce) && ce.Err != nil {
			env.Details = ce.Err.Error()
		}
	}

	var fields FieldErrors
	if errors.As(err, &fields) {
		env.Fields = fields
		env.Details = "request validation failed"
	}
	return status, env
}
