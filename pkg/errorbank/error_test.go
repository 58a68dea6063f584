package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestKindMapping(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
		code   codes.Code
	}{
		{NotFound("order not found"), http.StatusNotFound, codes.NotFound},
		{InvalidState("Order has not been STAKED"), http.StatusConflict, codes.FailedPrecondition},
		{InsufficientFunds("pool too low"), http.StatusPaymentRequired, codes.FailedPrecondition},
		{InvalidInput("unknown grade"), http.StatusBadRequest, codes.InvalidArgument},
		{Internal("boom"), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.code, tt.err.GRPCCode())
		})
	}
}

func TestFromWrapsForeignErrors(t *testing.T) {
	cause := errors.New("connection reset")

	appErr := From(cause)

	assert.Equal(t, KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)
	assert.Nil(t, From(nil))
}

func TestIsSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("accept order: %w", InvalidState("Order is not PENDING", WithDetail("order_id", 7)))

	assert.True(t, Is(err, KindInvalidState))
	assert.False(t, Is(err, KindNotFound))
	assert.Equal(t, 7, From(err).Details()["order_id"])
}

func TestNilAppErrorIsSafe(t *testing.T) {
	var appErr *AppError

	assert.Equal(t, "<nil>", appErr.Error())
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode())
}
