package engine

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/bizscout/models"
)

func TestInteractionTimeoutIsPerStep(t *testing.T) {
	d := &fakeDriver{fillDelay: 1200 * time.Millisecond}
	cfg := testConfig(1, 1, 1)
	cfg.Task.Retries = 0
	cfg.Task.InteractionTimeout = 2 * time.Second
	cfg.Detector.PollInterval = 100 * time.Millisecond
	cfg.Detector.GracePeriod = 3 * time.Second
	cfg.Detector.HardBudget = 1500 * time.Millisecond

	svc, err := NewService(d, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	res, err := svc.Lookup(context.Background(), []string{"loading acme"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	o := res[0]
	if !o.Success {
		t.Fatalf("outcome = %+v, want success", o)
	}
	if o.Detection == nil || o.Detection.State != models.StatePending || o.Detection.Reason != ReasonBudget {
		t.Errorf("detection = %+v, want pending on budget", o.Detection)
	}
	if o.HTML == "" {
		t.Error("expected the rendered HTML of the pending page")
	}
}

func TestConsentTimeoutIsIgnored(t *testing.T) {
	for _, mode := range []string{"block-exists", "block-click"} {
		t.Run(mode, func(t *testing.T) {
			d := &fakeDriver{consent: mode}
			cfg := testConfig(1, 1, 1)
			cfg.Task.ConsentTimeout = 50 * time.Millisecond
			svc, _ := startService(t, d, cfg, nil)

			res, err := svc.Lookup(context.Background(), []string{"acme"}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if o := res[0]; !o.Success || o.Attempts != 1 {
				t.Errorf("outcome = %+v, want success on first attempt", o)
			}
		})
	}
}
