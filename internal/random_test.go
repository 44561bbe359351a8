package internal

import (
	"testing"
)

func TestNewOTPLengthAndDigits(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(code) != digits || !IsDigits(code) {
			t.Fatalf("NewOTP(%d) returned %q", digits, code)
		}
	}
}

func TestNewOTPRejectsBadLength(t *testing.T) {
	for _, digits := range []int{0, 3, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestHashOTPBindsIdentifierAndPurpose(t *testing.T) {
	base := HashOTP("2348000000000", "signup", "123456")
	if !EqualHash(base, HashOTP("2348000000000", "signup", "123456")) {
		t.Fatal("expected hash to be deterministic")
	}
	if EqualHash(base, HashOTP("2348000000001", "signup", "123456")) {
		t.Fatal("expected identifier to change the hash")
	}
	if EqualHash(base, HashOTP("2348000000000", "login", "123456")) {
		t.Fatal("expected purpose to change the hash")
	}
}

func TestMaskIdentifier(t *testing.T) {
	cases := map[string]string{
		"2348000000000":   "2348*****0000",
		"ada@example.com": "a**@example.com",
		"x@example.com":   "*@example.com",
		"12345":           "*****",
		"":                "",
	}
	for in, want := range cases {
		if got := MaskIdentifier(in); got != want {
			t.Fatalf("MaskIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}
