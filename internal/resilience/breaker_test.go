package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBroker = errors.New("nats: no responders available for request")

// step is one call made against the breaker at a point in time.
type step struct {
	advance time.Duration
	fail    bool
	wantErr error
	wantRan bool
	state   string
}

func runSteps(t *testing.T, b *Breaker, steps []step) {
	t.Helper()
	now := time.Unix(1700000000, 0)
	b.now = func() time.Time { return now }
	for i, s := range steps {
		now = now.Add(s.advance)
		ran := false
		err := b.Execute(func() error {
			ran = true
			if s.fail {
				return errBroker
			}
			return nil
		})
		if !errors.Is(err, s.wantErr) {
			t.Fatalf("step %d: err = %v, want %v", i, err, s.wantErr)
		}
		if ran != s.wantRan {
			t.Fatalf("step %d: ran = %v, want %v", i, ran, s.wantRan)
		}
		if got := b.State(); got != s.state {
			t.Fatalf("step %d: state = %s, want %s", i, got, s.state)
		}
	}
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name  string
		max   int
		steps []step
	}{
		{
			name: "successes keep it closed",
			max:  3,
			steps: []step{
				{wantRan: true, state: "closed"},
				{wantRan: true, state: "closed"},
			},
		},
		{
			name: "opens after consecutive failures",
			max:  3,
			steps: []step{
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "open"},
				{wantErr: ErrCircuitOpen, state: "open"},
			},
		},
		{
			name: "success resets the failure count",
			max:  3,
			steps: []step{
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{wantRan: true, state: "closed"},
			},
		},
		{
			name: "probe after timeout closes on success",
			max:  2,
			steps: []step{
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "open"},
				{advance: 500 * time.Millisecond, wantErr: ErrCircuitOpen, state: "open"},
				{advance: time.Second, wantRan: true, state: "closed"},
			},
		},
		{
			name: "failed probe reopens",
			max:  2,
			steps: []step{
				{fail: true, wantErr: errBroker, wantRan: true, state: "closed"},
				{fail: true, wantErr: errBroker, wantRan: true, state: "open"},
				{advance: 2 * time.Second, fail: true, wantErr: errBroker, wantRan: true, state: "open"},
				{wantErr: ErrCircuitOpen, state: "open"},
			},
		},
		{
			name: "zero max trips on the first failure",
			max:  0,
			steps: []step{
				{fail: true, wantErr: errBroker, wantRan: true, state: "open"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSteps(t, NewBreaker("events", tt.max, time.Second), tt.steps)
		})
	}
}
