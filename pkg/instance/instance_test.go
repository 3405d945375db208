package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersOverride(t *testing.T) {
	t.Setenv(EnvInstanceID, "worker-7")
	t.Setenv("K_REVISION", "api-00042")
	assert.Equal(t, "worker-7", GetID("worker"))
}

func TestGetIDFallsBackToRevision(t *testing.T) {
	t.Setenv(EnvInstanceID, "  ")
	t.Setenv("K_REVISION", "api-00042")
	assert.Equal(t, "api-00042", GetID("api"))
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	t.Setenv("K_REVISION", "")
	assert.NotEmpty(t, GetID("cron-worker"))
}
