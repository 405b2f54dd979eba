package names_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"brsvc/internal/names"
)

func TestSanitizeReplacesDisallowedRunes(t *testing.T) {
	assert.Equal(t, names.Sanitize("squad one!", 32), "squad_one_")
	assert.Equal(t, names.Sanitize("ok-name_123", 32), "ok-name_123")
	assert.Equal(t, names.Sanitize("<script>", 32), "_script_")
}

func TestSanitizeTruncates(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	got := names.Sanitize(long, 32)
	assert.Equal(t, len(got), 32)
}
