package sentinelerr

import "testing"

func TestErrorDisplay(t *testing.T) {
	cases := []struct {
		err  *SentinelError
		want string
	}{
		{NewCapabilityExpired(42), "capability expired at 42"},
		{NewRateLimitExceeded(1500), "rate limit exceeded: retry after 1500ms"},
		{NewActionBlocked("suspension"), "action blocked at governance level suspension"},
		{NewConfirmationRequired("delete_prod_table"), `confirmation required for action "delete_prod_table"`},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("Error() = %q, want %q", got, c.want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	blocked := NewActionBlocked("suspension")
	if !blocked.IsBlocked() || !blocked.RequiresHuman() {
		t.Error("ActionBlocked should be blocked and require human")
	}

	confirm := NewConfirmationRequired("rm -rf /")
	if confirm.IsBlocked() {
		t.Error("ConfirmationRequired should not be IsBlocked")
	}
	if !confirm.RequiresHuman() {
		t.Error("ConfirmationRequired should require human")
	}

	rateLimited := NewRateLimitExceeded(250)
	if !rateLimited.IsRetryable() {
		t.Error("RateLimitExceeded should be retryable")
	}
	ms, ok := rateLimited.RetryAfter()
	if !ok || ms != 250 {
		t.Errorf("RetryAfter() = %d,%v want 250,true", ms, ok)
	}

	expired := NewCapabilityExpired(10)
	if !expired.IsRetryable() {
		t.Error("CapabilityExpired should be retryable")
	}

	cfgErr := NewConfigurationError("bad weights")
	if cfgErr.IsBlocked() || cfgErr.RequiresHuman() || cfgErr.IsRetryable() {
		t.Error("ConfigurationError should not classify as any of those")
	}
}
