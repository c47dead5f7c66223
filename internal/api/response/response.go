// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/skinquant/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: Detail(err)}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Fail writes err with the status StatusFor assigns it.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// Detail converts err into its wire form. Errors outside the core
// taxonomy are reported as INTERNAL_ERROR without their text.
func Detail(err error) ErrorDetail {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	return detail
}

var statusByCode = map[string]int{
	core.ErrSymbolNotFound.Code: http.StatusNotFound,
	core.ErrNoData.Code:         http.StatusNotFound,
	core.ErrJobNotFound.Code:    http.StatusNotFound,

	core.ErrVersionConflict.Code: http.StatusConflict,

	core.ErrInsufficientFunds.Code:     http.StatusUnprocessableEntity,
	core.ErrInventoryLimit.Code:        http.StatusUnprocessableEntity,
	core.ErrInsufficientInventory.Code: http.StatusUnprocessableEntity,
	core.ErrOptimizationEmpty.Code:     http.StatusUnprocessableEntity,
	core.ErrInsufficientData.Code:      http.StatusUnprocessableEntity,
	core.ErrRechargeInvalid.Code:       http.StatusUnprocessableEntity,

	core.ErrDataUnavailable.Code: http.StatusBadGateway,

	core.ErrInvalidOrder.Code:  http.StatusBadRequest,
	core.ErrConfigInvalid.Code: http.StatusBadRequest,
	core.ErrConfigMissing.Code: http.StatusBadRequest,

	core.ErrUnauthorized.Code: http.StatusUnauthorized,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		if status, ok := statusByCode[coreErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}
