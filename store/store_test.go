package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/bizscout/models"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLookupRoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	started := time.UnixMilli(1_762_700_000_000)

	outcomes := models.BatchResult{
		{Index: 0, Query: "Acme", HTML: "<html/>", Success: true, Elapsed: 4.5, Attempts: 1, ContextID: "s0-c0",
			Detection: &models.Detection{State: models.StateResultsPresent, Reason: "results"}},
		{Index: 1, Query: "Beta", ErrorKind: models.ErrCodeSubmissionFailed, ErrorMessage: models.MsgSubmissionFailed, Elapsed: 2, Attempts: 1, ContextID: "s1-c0"},
	}
	run := Run{ID: "job-1", StartedAt: started, FinishedAt: started.Add(time.Minute)}
	if err := s.SaveLookup(ctx, run, outcomes, false); err != nil {
		t.Fatal(err)
	}

	got, err := s.Run(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	want := Run{ID: "job-1", Kind: KindLookup, Status: "partial", Total: 2, Succeeded: 1, StartedAt: started, FinishedAt: started.Add(time.Minute)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	stored, err := s.Outcomes(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	outcomes[0].HTML = ""
	if diff := cmp.Diff(outcomes, stored); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLookupReplacesOutcomes(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	run := Run{ID: "job-2", StartedAt: time.Now(), FinishedAt: time.Now()}

	if err := s.SaveLookup(ctx, run, models.BatchResult{{Index: 0, Query: "a"}, {Index: 1, Query: "b"}}, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveLookup(ctx, run, models.BatchResult{{Index: 0, Query: "a", Success: true}}, true); err != nil {
		t.Fatal(err)
	}
	got, err := s.Outcomes(ctx, "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].Success {
		t.Errorf("outcomes = %+v, want the single replacement", got)
	}
}

func TestRunNotFound(t *testing.T) {
	s := openTest(t)
	if _, err := s.Run(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCorporationsLatestRun(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1_762_700_000_000)

	old := []models.Corporation{{CorporateName: "Old Co-op", CorporationNumber: "1", BusinessNumber: "111111111RC0001"}}
	fresh := []models.Corporation{
		{CorporateName: "New Co-op", CorporationNumber: "2", BusinessNumber: "222222222RC0001"},
		{CorporateName: "Other Co-op", CorporationNumber: "3", BusinessNumber: "Not Available"},
	}
	nfp := []models.Corporation{{CorporateName: "Society", CorporationNumber: "4", BusinessNumber: "444444444RC0001"}}

	if err := s.SaveCorporations(ctx, Run{ID: "r1", StartedAt: t0, FinishedAt: t0}, "12", old, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCorporations(ctx, Run{ID: "r2", StartedAt: t0, FinishedAt: t0.Add(time.Hour)}, "12", fresh, errors.New("page 3 failed")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCorporations(ctx, Run{ID: "r3", StartedAt: t0, FinishedAt: t0.Add(2 * time.Hour)}, "14", nfp, nil); err != nil {
		t.Fatal(err)
	}

	got, err := s.Corporations(ctx, "12")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fresh, got); diff != "" {
		t.Errorf("corporations mismatch (-want +got):\n%s", diff)
	}
	run, err := s.Run(ctx, "r2")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != "partial" || run.Kind != KindRegistry {
		t.Errorf("run = %+v", run)
	}
}
