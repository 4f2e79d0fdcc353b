package auth

import (
	"context"
	"fmt"
)

// VerifyTwoFactor checks the presented second-factor token for a user in the
// two-factor-pending state. On success the user is marked verified, a full
// sign-in is performed if one has not happened yet (so the LOGIN event is
// recorded and remember-me can be issued), and the verified flag is persisted
// on the session. A storage refusal at that last step is fatal.
func (m *Manager) VerifyTwoFactor(ctx context.Context, user *User, token string, remember bool, req Request, res Response) error {
	if m == nil {
		return ErrNotReady
	}
	if m.twoFactor == nil {
		return ErrTwoFactorNotConfigured
	}
	if user == nil {
		return ErrTwoFactorInvalid
	}

	if err := m.twoFactor.Verify(ctx, user, token); err != nil {
		m.metricInc(MetricTwoFactorFailure)
		return err
	}

	user.markTwoFactorVerified(true)
	m.metricInc(MetricTwoFactorSuccess)

	if !user.IsSignedIn() {
		if _, err := m.SignInUser(ctx, user, m.twoFactor.ID(), remember, req, res); err != nil {
			return err
		}
	}

	if err := m.storage.SetTwoFactorVerified(ctx, req, res); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUpdateFailed, err)
	}
	return nil
}
