package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "json"},
		{"   ", "json"},
		{"console", "console"},
		{" console ", "console"},
	}
	for _, tt := range tests {
		t.Setenv("FUNDLEDGER_TEST_VALUE", tt.raw)
		assert.Equal(t, tt.want, Get("FUNDLEDGER_TEST_VALUE", "json"), "raw %q", tt.raw)
	}
}

func TestGetBool(t *testing.T) {
	tests := []struct {
		raw      string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"0", true, false},
		{"not-a-bool", true, true},
		{"", true, true},
	}
	for _, tt := range tests {
		t.Setenv("FUNDLEDGER_TEST_FLAG", tt.raw)
		assert.Equal(t, tt.want, GetBool("FUNDLEDGER_TEST_FLAG", tt.fallback), "raw %q", tt.raw)
	}
}
