package main

import (
	"strings"
	"testing"

	"github.com/Ramivz11/aurum-gestion/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty secret", "", true},
		{"short secret", "too-short", true},
		{"31 chars", strings.Repeat("a", 31), true},
		{"32 chars", strings.Repeat("a", 32), false},
		{"long secret", strings.Repeat("a", 64), false},
	}

	for _, tc := range cases {
		err := validateSecurityConfig(config.Config{AuthSecret: tc.secret})
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}
