package handlers

import (
	"errors"
	"net/http"

	"example.com/backstage/services/procurement/internal/api/middleware"
	"example.com/backstage/services/procurement/internal/procurement"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message  string            `json:"message"`
	Code     string            `json:"code"`
	OrderID  string            `json:"order_id,omitempty"`
	Position *int              `json:"position,omitempty"`
	Material string            `json:"material_code,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind procurement.Kind) int {
	switch kind {
	case procurement.KindNotFound:
		return http.StatusNotFound
	case procurement.KindIdentityMismatch:
		return http.StatusConflict
	case procurement.KindValidation:
		return http.StatusBadRequest
	case procurement.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status of its kind
func respondError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

// errorBody builds the status and body for err. Internal errors are logged
// and their detail is not returned.
func errorBody(c *gin.Context, err error) (int, ErrorResponse) {
	kind := procurement.KindOf(err)
	status := StatusFor(kind)
	body := ErrorResponse{Message: err.Error(), Code: kind.String()}

	var perr *procurement.Error
	if errors.As(err, &perr) {
		body.Message = perr.Message
		body.Fields = perr.Fields
		if perr.OrderID != "" {
			position := perr.Position
			body.OrderID = perr.OrderID
			body.Position = &position
			body.Material = perr.Code
		}
	}

	if status == http.StatusInternalServerError {
		requestID, _ := c.Get(middleware.RequestIDKey)
		log.Error().Err(err).Interface("request_id", requestID).Str("path", c.Request.URL.Path).Msg("Request failed")
		body.Message = "internal error"
	}

	return status, body
}

// badRequest reports malformed input that never reached the service
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Message: err.Error(),
		Code:    procurement.KindValidation.String(),
	})
}
