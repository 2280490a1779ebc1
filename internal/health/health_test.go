package health

import (
	"sync"
	"testing"
	"time"
)

func TestRequestCount(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	RecordSuccess()
	RecordSuccess()
	RecordError()
	RecordDenial()

	if got := RequestCount(time.Minute); got != 4 {
		t.Errorf("RequestCount = %d, want 4", got)
	}
	if got := DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount = %d, want 1", got)
	}
}

func TestErrorRateExcludesDenials(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	RecordSuccess()
	RecordSuccess()
	RecordError()
	RecordDenial()
	RecordDenial()

	errs, total := ErrorRate(time.Minute)
	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (denials excluded)", total)
	}
}

func TestCountRespectsWindow(t *testing.T) {
	var tr Tracker
	tr.Record(outcomeSuccess)
	time.Sleep(30 * time.Millisecond)
	tr.Record(outcomeSuccess)

	if got := tr.Count(10*time.Millisecond, anyOutcome); got != 1 {
		t.Errorf("narrow window count = %d, want 1", got)
	}
	if got := tr.Count(time.Minute, anyOutcome); got != 2 {
		t.Errorf("wide window count = %d, want 2", got)
	}
}

func TestShuttingDownFlag(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if IsShuttingDown() {
		t.Fatal("shutting down before SetShuttingDown")
	}
	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("flag not set")
	}
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("flag not cleared")
	}
}

func TestResetClearsState(t *testing.T) {
	t.Cleanup(Reset)

	RecordSuccess()
	SetShuttingDown(true)
	Reset()

	if got := RequestCount(time.Minute); got != 0 {
		t.Errorf("RequestCount after reset = %d, want 0", got)
	}
	if IsShuttingDown() {
		t.Error("shutdown flag survived reset")
	}
}

func TestTrackerConcurrent(t *testing.T) {
	var tr Tracker
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(outcomeSuccess)
		}()
	}
	wg.Wait()
	if got := tr.Count(time.Minute, outcomeSuccess); got != 100 {
		t.Errorf("count = %d, want 100", got)
	}
}
