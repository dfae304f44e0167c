package account

import (
	"errors"
	"strings"
	"testing"

	"github.com/atmx/settlement-engine/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want model.AccountID
		err  error
	}{
		{"opaque id", "alice", "alice", nil},
		{"trimmed", "  alice\t", "alice", nil},
		{"lowercase address", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", nil},
		{"uppercase address", "0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", nil},
		{"short hex stays opaque", "0xabc", "0xabc", nil},
		{"empty", "", "", ErrEmpty},
		{"blank", "   ", "", ErrEmpty},
		{"inner space", "al ice", "", ErrInvalid},
		{"control char", "al\x00ice", "", ErrInvalid},
		{"too long", strings.Repeat("a", MaxLength+1), "", ErrTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalize_SameAddressSameAccount(t *testing.T) {
	a, _ := Normalize("0x5AAEB6053f3e94c9b9a09f33669435e7ef1beaed")
	b, _ := Normalize("0x5aaeb6053F3E94C9B9A09F33669435E7EF1BEAED")
	if a != b {
		t.Errorf("expected equal accounts, got %s and %s", a, b)
	}
}

func TestIsAddress(t *testing.T) {
	if !IsAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Error("expected address")
	}
	if IsAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Error("unprefixed hex is not treated as an address")
	}
	if IsAddress("owner") {
		t.Error("opaque id is not an address")
	}
}
