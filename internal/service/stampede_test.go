package service

import (
	"sync"
	"testing"
)

func TestStampedeTrackerCounts(t *testing.T) {
	st := newStampedeTracker()

	if got := st.RecordMiss("basemap:a"); got != 1 {
		t.Errorf("first miss count = %d, want 1", got)
	}
	if got := st.RecordMiss("basemap:a"); got != 2 {
		t.Errorf("second miss count = %d, want 2", got)
	}
	if got := st.RecordMiss("legend:b"); got != 1 {
		t.Errorf("other key count = %d, want 1", got)
	}

	st.RecordDone("basemap:a")
	if got := st.RecordMiss("basemap:a"); got != 2 {
		t.Errorf("count after one done = %d, want 2", got)
	}
}

func TestStampedeTrackerDoneOnUnknownKey(t *testing.T) {
	st := newStampedeTracker()
	st.RecordDone("never-missed")
	if got := st.RecordMiss("never-missed"); got != 1 {
		t.Errorf("count = %d, want 1 after no-op done", got)
	}
}

func TestStampedeTrackerConcurrent(t *testing.T) {
	st := newStampedeTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.RecordMiss("k")
			st.RecordDone("k")
		}()
	}
	wg.Wait()
	if got := st.RecordMiss("k"); got != 1 {
		t.Errorf("count = %d, want 1 after balanced miss/done pairs", got)
	}
}
