package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every module.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
)

// Factor scoring error codes.
const (
	// ErrCodeFactorUnknown marks a factor input whose factor_id is not in
	// the calibration table.
	ErrCodeFactorUnknown ErrorCode = "FAC_001"

	// ErrCodeFactorInputIncomplete marks missing or malformed raw fields.
	// Recovered locally by flooring the factor's confidence; it never
	// aborts a scoring run.
	ErrCodeFactorInputIncomplete ErrorCode = "FAC_002"
)

// Pattern library error codes.
const (
	ErrCodePatternUnknown          ErrorCode = "PAT_001"
	ErrCodePatternPredicateInvalid ErrorCode = "PAT_002"
)

// Monte Carlo simulation error codes.
const (
	// ErrCodeInvalidSimulationParameters is returned before any sampling
	// when iterations < 1 or an uncertainty source carries a non-positive
	// std for a distribution that requires one.
	ErrCodeInvalidSimulationParameters ErrorCode = "SIM_001"
)

// Persona synthesis error codes.
const (
	ErrCodePersonaGenerationFailed ErrorCode = "PER_001"
	ErrCodePersonaOutputMalformed  ErrorCode = "PER_002"
)

// Generation orchestration error codes.
const (
	// ErrCodeGenerationNotFound distinguishes "no run for this session"
	// from "run exists but is still processing".
	ErrCodeGenerationNotFound ErrorCode = "GEN_001"

	// ErrCodeGenerationInProgress is the at-most-one-run rejection. It is
	// an expected concurrent-request outcome, surfaced to callers as an
	// "already running" status rather than a fault.
	ErrCodeGenerationInProgress ErrorCode = "GEN_002"

	ErrCodeGenerationFailed ErrorCode = "GEN_003"
)

// Content source error codes.
const (
	ErrCodeContentSourceUnavailable ErrorCode = "SRC_001"
	ErrCodeContentParseError        ErrorCode = "SRC_002"
)

// Language generation error codes.
const (
	ErrCodeLangGenUnavailable ErrorCode = "LLM_001"
	ErrCodeLangGenMalformed   ErrorCode = "LLM_002"
)

// Aliases used across layers.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("")
	CodeOK           = ErrorCode("OK")
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeFactorUnknown:         http.StatusBadRequest,
	ErrCodeFactorInputIncomplete: http.StatusUnprocessableEntity,

	ErrCodePatternUnknown:          http.StatusNotFound,
	ErrCodePatternPredicateInvalid: http.StatusInternalServerError,

	ErrCodeInvalidSimulationParameters: http.StatusBadRequest,

	ErrCodePersonaGenerationFailed: http.StatusInternalServerError,
	ErrCodePersonaOutputMalformed:  http.StatusInternalServerError,

	ErrCodeGenerationNotFound:   http.StatusNotFound,
	ErrCodeGenerationInProgress: http.StatusConflict,
	ErrCodeGenerationFailed:     http.StatusInternalServerError,

	ErrCodeContentSourceUnavailable: http.StatusServiceUnavailable,
	ErrCodeContentParseError:        http.StatusBadGateway,

	ErrCodeLangGenUnavailable: http.StatusServiceUnavailable,
	ErrCodeLangGenMalformed:   http.StatusBadGateway,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeFactorUnknown:         "unknown factor",
	ErrCodeFactorInputIncomplete: "incomplete factor input",

	ErrCodePatternUnknown:          "pattern not found",
	ErrCodePatternPredicateInvalid: "invalid pattern predicate",

	ErrCodeInvalidSimulationParameters: "invalid simulation parameters",

	ErrCodePersonaGenerationFailed: "persona generation failed",
	ErrCodePersonaOutputMalformed:  "persona output malformed",

	ErrCodeGenerationNotFound:   "generation not found",
	ErrCodeGenerationInProgress: "generation already in progress",
	ErrCodeGenerationFailed:     "generation failed",

	ErrCodeContentSourceUnavailable: "content source unavailable",
	ErrCodeContentParseError:        "failed to parse content source response",

	ErrCodeLangGenUnavailable: "language generation unavailable",
	ErrCodeLangGenMalformed:   "language generation output malformed",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError reports whether the ErrorCode maps to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether the ErrorCode maps to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode, e.g. "SIM".
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
