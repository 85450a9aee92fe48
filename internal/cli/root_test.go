package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/quotedeck/internal/auth"
	"github.com/waabox/quotedeck/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitCodeSuccess},
		{"plain", errors.New("boom"), ExitCodeError},
		{"configuration", &auth.ConfigurationError{Field: "client_secret", Reason: "missing"}, ExitCodeConfigError},
		{"wrapped configuration", fmt.Errorf("app: %w", &auth.ConfigurationError{Field: "x"}), ExitCodeConfigError},
		{"sign-in failed", &AuthFailedError{State: auth.StateDenied, Message: "denied"}, ExitCodeAuthFailed},
		{"session expired", &domain.AuthExpiredError{Cause: errors.New("401")}, ExitCodeAuthRequired},
		{"not signed in", &auth.AuthenticationRequiredError{Reason: "no tokens"}, ExitCodeAuthRequired},
		{"remote", &domain.RemoteError{StatusCode: 500}, ExitCodeError},
		{"not found", domain.ErrNotFound, ExitCodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestParseLine(t *testing.T) {
	line, err := parseLine("Audit days:4:1100.50")
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteLine{Description: "Audit days", Quantity: 4, UnitPrice: 1100.5}, line)

	line, err = parseLine("Ratio 2:1 kit : 3 : 10")
	require.NoError(t, err)
	assert.Equal(t, "Ratio 2:1 kit", line.Description)
	assert.Equal(t, 3.0, line.Quantity)
	assert.Equal(t, 10.0, line.UnitPrice)
}

func TestParseLine_Invalid(t *testing.T) {
	for _, raw := range []string{"nothing", "a:1", "a:x:1", "a:1:y"} {
		_, err := parseLine(raw)
		assert.Error(t, err, raw)
	}
}
