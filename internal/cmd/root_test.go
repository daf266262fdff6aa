package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitError(t *testing.T) {
	t.Run("message only", func(t *testing.T) {
		err := exitError(2, "invalid argument", nil)

		var ec *exitCodeError
		assert.True(t, errors.As(err, &ec))
		assert.Equal(t, 2, ec.code)
		assert.Equal(t, "invalid argument", err.Error())
	})

	t.Run("wraps cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := exitError(69, "authority unreachable", cause)

		var ec *exitCodeError
		assert.True(t, errors.As(err, &ec))
		assert.Equal(t, 69, ec.code)
		assert.Equal(t, "authority unreachable: connection refused", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}
