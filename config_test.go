package x402

import (
	"testing"
	"time"
)

func TestTimeoutConfigDefaults(t *testing.T) {
	if err := DefaultTimeouts.Validate(); err != nil {
		t.Errorf("DefaultTimeouts.Validate() error = %v", err)
	}
}

func TestTimeoutConfigWith(t *testing.T) {
	tc := DefaultTimeouts.
		WithVerifyTimeout(10 * time.Second).
		WithSettleTimeout(20 * time.Second).
		WithRequestTimeout(30 * time.Second)

	if tc.VerifyTimeout != 10*time.Second || tc.SettleTimeout != 20*time.Second || tc.RequestTimeout != 30*time.Second {
		t.Errorf("unexpected config: %+v", tc)
	}
	// Builders copy; the defaults stay untouched.
	if DefaultTimeouts.VerifyTimeout != 90*time.Second {
		t.Errorf("DefaultTimeouts mutated: %+v", DefaultTimeouts)
	}
}

func TestTimeoutConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  TimeoutConfig
		wantErr bool
	}{
		{"valid", DefaultTimeouts, false},
		{"zero verify", DefaultTimeouts.WithVerifyTimeout(0), true},
		{"negative settle", DefaultTimeouts.WithSettleTimeout(-time.Second), true},
		{"zero request", DefaultTimeouts.WithRequestTimeout(0), true},
		{"settle shorter than verify", DefaultTimeouts.WithVerifyTimeout(200 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPollConfig(t *testing.T) {
	for _, pc := range []PollConfig{DefaultVerifyPoll, DefaultSettlePoll} {
		if err := pc.Validate(); err != nil {
			t.Errorf("default poll config invalid: %v", err)
		}
	}

	if got := DefaultVerifyPoll.Budget(); got != 60*time.Second {
		t.Errorf("DefaultVerifyPoll.Budget() = %v; want 60s", got)
	}
	if got := DefaultSettlePoll.Budget(); got != 120*time.Second {
		t.Errorf("DefaultSettlePoll.Budget() = %v; want 120s", got)
	}

	tests := []struct {
		name    string
		config  PollConfig
		wantErr bool
	}{
		{"valid", PollConfig{Interval: time.Second, MaxAttempts: 5}, false},
		{"zero interval", PollConfig{MaxAttempts: 5}, true},
		{"zero attempts", PollConfig{Interval: time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
