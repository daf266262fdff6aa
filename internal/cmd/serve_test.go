package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		dsn        string
		wantErr    bool
		errContain string
	}{
		{
			name:    "dsn configured",
			dsn:     "tally:secret@tcp(localhost:3306)/fieldtally",
			wantErr: false,
		},
		{
			name:       "missing dsn",
			dsn:        "",
			wantErr:    true,
			errContain: "missing authority dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := identityHealthChecker{dsn: tt.dsn}

			err := checker.CheckHealth(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
