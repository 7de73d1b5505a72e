package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"payment-gateway/internal/processor"
	"payment-gateway/internal/service"
	"payment-gateway/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

// jsonFieldName makes validation errors name fields the way clients send them
func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// bind decodes the JSON body into dst, answering 400 itself on failure.
func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		h.respondError(c, &service.ValidationError{Fields: fields}, "")
		return false
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request body",
	})
	return false
}

// respondError maps service failures to status codes. mismatchMessage is the
// message reported for a signature mismatch on this route. Only the
// processor's own description is ever echoed back.
func (h *Handler) respondError(c *gin.Context, err error, mismatchMessage string) {
	var (
		verr   *service.ValidationError
		serr   *service.StatusError
		status int
		body   gin.H
	)

	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body = gin.H{"success": false, "error": verr.Error(), "fields": verr.Fields}

	case errors.Is(err, service.ErrSignatureMismatch), errors.Is(err, webhook.ErrInvalidSignature):
		if mismatchMessage == "" {
			mismatchMessage = "Invalid signature"
		}
		status = http.StatusBadRequest
		body = gin.H{"success": false, "message": mismatchMessage}

	case errors.As(err, &serr):
		status = http.StatusBadRequest
		body = gin.H{"success": false, "message": "Payment not captured", "status": serr.Status}

	case errors.Is(err, webhook.ErrMalformedPayload):
		status = http.StatusBadRequest
		body = gin.H{"success": false, "error": "Malformed webhook payload"}

	case errors.Is(err, service.ErrResolutionInProgress):
		status = http.StatusConflict
		body = gin.H{"success": false, "error": "Customer resolution already in progress, retry shortly"}

	case processor.IsUpstream(err):
		desc := processor.Description(err)
		if desc == "" {
			desc = "Payment processor request failed"
		}
		status = http.StatusInternalServerError
		body = gin.H{"success": false, "error": desc}

	default:
		status = http.StatusInternalServerError
		body = gin.H{"success": false, "error": "Internal server error"}
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, body)
}
