package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ParamValidator is a function type that validates a parameter.
type ParamValidator func(valueToTest int64) bool

func newComparisonValidator(valueInClosure int64, compareFn func(argValue, closedValue int64) bool) ParamValidator {
	return func(argValue int64) bool {
		return compareFn(argValue, valueInClosure)
	}
}

// gte returns a ParamValidator that checks if the argument is greater than or equal to the value captured in the closure.
func gte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue >= closedValue
	})
}

// gt returns a ParamValidator that checks if the argument is greater than the value captured in the closure.
func gt(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue > closedValue
	})
}

// ParseOptionalGte parses an optional integer query parameter. A missing or
// blank parameter yields the fallback; an unparseable or out-of-range value is
// a client error.
func ParseOptionalGte(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, min int64, fallback int) (int, bool) {
	return parseOptional(r, w, logger, key, gte(min), fallback)
}

// ParseOptionalGt is ParseOptionalGte with a strict lower bound.
func ParseOptionalGt(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, min int64, fallback int) (int, bool) {
	return parseOptional(r, w, logger, key, gt(min), fallback)
}

func parseOptional(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, pValidator ParamValidator, fallback int) (int, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, true
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil || !pValidator(intValue) {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return 0, false
	}
	return int(intValue), true
}
