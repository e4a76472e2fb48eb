package mfa

import (
	"testing"
)

func TestGenerateOTP(t *testing.T) {
	otp, err := GenerateOTP()
	if err != nil {
		t.Fatalf("GenerateOTP: %v", err)
	}
	if len(otp) != 6 {
		t.Errorf("OTP length = %d, want 6", len(otp))
	}
	for _, c := range otp {
		if c < '0' || c > '9' {
			t.Errorf("OTP contains non-digit: %c", c)
		}
	}
}

func TestGenerateOTP_NotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		otp, err := GenerateOTP()
		if err != nil {
			t.Fatalf("GenerateOTP: %v", err)
		}
		seen[otp] = true
	}
	if len(seen) < 2 {
		t.Error("20 OTPs yielded a single value")
	}
}

func TestHashOTP(t *testing.T) {
	hash := HashOTP("123456")
	if hash != HashOTP("123456") {
		t.Error("HashOTP not deterministic")
	}
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(hash))
	}
	if hash == HashOTP("654321") {
		t.Error("distinct codes hashed to the same value")
	}
}

func TestOTPEqual(t *testing.T) {
	stored := HashOTP("123456")

	if !OTPEqual("123456", stored) {
		t.Error("correct code rejected")
	}
	if OTPEqual("654321", stored) {
		t.Error("wrong code accepted")
	}
	if OTPEqual("123456", "a"+stored) {
		t.Error("length-mismatched hash accepted")
	}
	if OTPEqual("", stored) {
		t.Error("empty code accepted")
	}
	if OTPEqual("", "") {
		t.Error("empty code and hash accepted")
	}
}
