package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/railzwaylabs/tallybook/internal/apperror"
	paymentdomain "github.com/railzwaylabs/tallybook/internal/payment/domain"
)

var errInvalidRequest = apperror.Mark(errors.New("invalid_request"), apperror.ErrInvalidArgument)

func invalidRequestError() error {
	return errInvalidRequest
}

// AbortWithError writes the error envelope for err and stops the chain.
// Internal failures are reported without their cause; the access log
// records it.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	status := statusFor(err)
	code := apperror.Code(err)
	body := gin.H{"error": err.Error(), "code": code}

	var bulk *paymentdomain.BulkDeleteError
	if errors.As(err, &bulk) {
		body["error"] = bulk.Reason.Error()
		body["code"] = apperror.Code(bulk.Reason)
		body["payment_ids"] = bulk.PaymentIDs
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal server error"
		body["code"] = apperror.ErrStore.Error()
	}

	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch apperror.Kind(err) {
	case apperror.ErrInvalidArgument:
		return http.StatusBadRequest
	case apperror.ErrNotFound:
		return http.StatusNotFound
	case apperror.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
