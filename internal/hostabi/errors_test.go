package hostabi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodeStringKnownValues(t *testing.T) {
	cases := map[ErrorCode]string{
		Success:                   "success",
		InternalApiError:          "internal_api_error",
		ApiNotConfigured:          "api_not_configured",
		ParametersNotUtf8:         "parameters_not_utf8",
		CouldNotGetAdequateMemory: "could_not_get_adequate_memory",
		ReturnBufferTooSmall:      "return_buffer_too_small",
		CacheDisabled:             "cache_disabled",
		StorageLimitReached:       "storage_limit_reached",
		TestMode:                  "test_mode",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}

func TestErrorCodeStringUnknownValue(t *testing.T) {
	assert.Equal(t, "unknown_error", ErrorCode(-99).String())
}
