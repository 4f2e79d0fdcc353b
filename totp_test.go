package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// rfcTestUser wraps the RFC 6238 reference secret in a principal.
func rfcTestUser() *User {
	return NewUser(Registered(7), &UserRecord{
		ID:              7,
		Email:           "ada@example.com",
		Enabled:         true,
		TwoFactorSecret: []byte("12345678901234567890"),
	})
}

func totpAt(unix int64) *TOTPStrategy {
	return NewTOTPStrategy(
		TwoFactorConfig{Digits: 6, Period: 30},
		&fakeClock{now: time.Unix(unix, 0)},
	)
}

func TestTOTPReferenceVectors(t *testing.T) {
	// SHA-1 reference times, truncated to six digits.
	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
	}

	for _, v := range vectors {
		strategy := totpAt(v.unix)
		if err := strategy.Verify(context.Background(), rfcTestUser(), v.code); err != nil {
			t.Fatalf("t=%d code=%s: %v", v.unix, v.code, err)
		}
	}
}

func TestTOTPRejectsWrongAndMalformedCodes(t *testing.T) {
	strategy := totpAt(59)
	ctx := context.Background()

	for _, code := range []string{
		"287083",    // off by one
		"28708",     // too short
		"2870822",   // too long
		"28708a",    // non-numeric
		"",          // empty
		" 287082 x", // garbage
	} {
		if err := strategy.Verify(ctx, rfcTestUser(), code); !errors.Is(err, ErrTwoFactorInvalid) {
			t.Fatalf("code %q: expected ErrTwoFactorInvalid, got %v", code, err)
		}
	}
}

func TestTOTPAcceptsAdjacentStepWithinSkew(t *testing.T) {
	user := rfcTestUser()
	ctx := context.Background()

	// The code for t=59 (counter 1) presented one step later.
	late := NewTOTPStrategy(
		TwoFactorConfig{Digits: 6, Period: 30, Skew: 1},
		&fakeClock{now: time.Unix(89, 0)},
	)
	if err := late.Verify(ctx, user, "287082"); err != nil {
		t.Fatalf("within skew: %v", err)
	}

	// Two steps of drift is outside a skew of one.
	later := NewTOTPStrategy(
		TwoFactorConfig{Digits: 6, Period: 30, Skew: 1},
		&fakeClock{now: time.Unix(119, 0)},
	)
	if err := later.Verify(ctx, user, "287082"); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("outside skew: expected ErrTwoFactorInvalid, got %v", err)
	}
}

func TestTOTPNeedsVerificationOnlyForEnrolledUsers(t *testing.T) {
	strategy := totpAt(59)
	ctx := context.Background()

	needed, err := strategy.NeedsVerification(ctx, rfcTestUser())
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if !needed {
		t.Fatal("enrolled user must be gated")
	}

	plain := NewUser(Registered(8), &UserRecord{ID: 8, Enabled: true})
	needed, err = strategy.NeedsVerification(ctx, plain)
	if err != nil {
		t.Fatalf("unenrolled: %v", err)
	}
	if needed {
		t.Fatal("user without a secret must not be gated")
	}

	needed, err = strategy.NeedsVerification(ctx, NewUser(Guest(), nil))
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if needed {
		t.Fatal("guests are never gated")
	}
}

func TestTOTPUnsupportedAlgorithm(t *testing.T) {
	strategy := NewTOTPStrategy(
		TwoFactorConfig{Digits: 6, Period: 30, Algorithm: "MD5"},
		&fakeClock{now: time.Unix(59, 0)},
	)
	if err := strategy.Verify(context.Background(), rfcTestUser(), "287082"); err == nil {
		t.Fatal("expected an error for an unsupported algorithm")
	}
}
