package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateGroupCode(t *testing.T) {
	code := GenerateGroupCode()
	assert.Regexp(t, regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`), code)
	assert.NotEqual(t, code, GenerateGroupCode())
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock(at)())
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("CAPACITY_EXCEEDED", "booking failed", "occasion has no spots left")
	assert.False(t, resp.Success)
	assert.Equal(t, "CAPACITY_EXCEEDED", resp.Code)
	assert.Equal(t, "occasion has no spots left", resp.Error)
}
