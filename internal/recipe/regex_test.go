package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyRegex(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		pattern   string
		formatted string
		valid     bool
	}{
		{"escaped dollar", "50$", `(\d+)\$`, "50", true},
		{"anchored at end", "50", `(\d+)$`, "50", true},
		{"anchor misses trailing symbol", "50$", `(\d+)$`, "50$", true},
		{"multiline anchor", "a 1\nb 2", `(\d)$`, "1", true},
		{"first match wins", "id=7 id=8", `id=(\d)`, "7", true},
		{"no group", "abc", `b`, "abc", true},
		{"empty group", "abc", `(x?)abc`, "abc", true},
		{"unbalanced", "50$", `(\d+`, "50$", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatted, valid := ApplyRegex(tt.text, tt.pattern)
			assert.Equal(t, tt.formatted, formatted)
			assert.Equal(t, tt.valid, valid)
		})
	}
}

func TestValidRegex(t *testing.T) {
	assert.True(t, ValidRegex(`(\d+)\$`))
	assert.False(t, ValidRegex(`(`))
	assert.False(t, ValidRegex(`[a-`))
}
