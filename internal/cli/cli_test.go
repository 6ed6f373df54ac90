package cli

import (
	"testing"
	"time"

	"geofence-events/internal/general/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantMode string
		wantRest []string
		wantErr  bool
	}{
		{"flag form", []string{"--mode=geofence-service", "--prefetch=4"}, ModeService, []string{"--prefetch=4"}, false},
		{"alias flag", []string{"--mode=replay", "--file=x.json"}, ModeReplay, []string{"--file=x.json"}, false},
		{"subcommand", []string{"service", "--max-concurrent=5"}, ModeService, []string{"--max-concurrent=5"}, false},
		{"missing", []string{"--prefetch=4"}, "", []string{"--prefetch=4"}, true},
		{"unknown", []string{"--mode=ride-service"}, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, rest, err := ParseMode(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, mode)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestGenerateUserToken(t *testing.T) {
	token, claims, err := GenerateUserToken("secret", time.Hour, "user-1", "org-1", "operator")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "org-1", claims.OrganizationID)

	_, parsed, err := jwt.NewManager("secret", time.Hour).ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "org-1", parsed.OrganizationID)

	_, _, err = GenerateUserToken("secret", time.Hour, "user-1", "org-1", "PASSENGER")
	assert.Error(t, err)
}
