package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	owned := tagging.NewOwnershipError(tagging.PROwner("acme", "1"), "security group", "sg-1")
	cases := []struct {
		err  error
		want int
	}{
		{err: appErr.New(appErr.CodeInvalid, "x"), want: http.StatusBadRequest},
		{err: appErr.New(appErr.CodeNotFound, "x"), want: http.StatusNotFound},
		{err: appErr.New(appErr.CodeFailedPrecondition, "x"), want: http.StatusConflict},
		{err: appErr.New(appErr.CodeUnauthorized, "x"), want: http.StatusUnauthorized},
		{err: appErr.New(appErr.CodeNotReady, "x"), want: http.StatusServiceUnavailable},
		{err: fmt.Errorf("wrapped: %w", owned), want: http.StatusNotFound},
		{err: errors.New("InvalidGroup.NotFound: the group is gone"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestFromAppError(t *testing.T) {
	assert.Nil(t, FromAppError(nil))

	e := FromAppError(fmt.Errorf("ctx: %w", appErr.New(appErr.CodeInvalid, "bad project")))
	assert.Equal(t, &APIError{Code: "invalid", Message: "bad project"}, e)

	owned := tagging.NewOwnershipError(tagging.ProjectOwner("acme"), "subnet", "subnet-1")
	assert.Equal(t, "not_found", FromAppError(owned).Code)

	assert.Equal(t, "unknown", FromAppError(errors.New("boom")).Code)
}
