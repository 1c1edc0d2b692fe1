package actionlog

import (
	"sync"
	"testing"
	"time"

	"github.com/gogogo1024/screengate/protocol"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendAssignsSequenceAndPrevious(t *testing.T) {
	l := New()
	first, prev := l.Append(Entry{Command: &protocol.KeyCodeMessage{Action: protocol.ActionDown, KeyCode: 66}})
	if prev != nil {
		t.Fatalf("first record has predecessor %d", prev.Sequence)
	}
	second, prev := l.Append(Entry{Command: &protocol.ScrollMessage{}})
	if prev != first {
		t.Fatalf("second predecessor=%v, want first", prev)
	}
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("sequences=%d,%d", first.Sequence, second.Sequence)
	}
	if !first.IsKeyPress() || first.KeyCode != 66 {
		t.Fatalf("first record fields=%+v", first)
	}
	if second.Action != -1 || second.KeyCode != -1 {
		t.Fatalf("scroll record fields action=%d keycode=%d", second.Action, second.KeyCode)
	}
	if l.Previous(second) != first || l.Previous(first) != nil {
		t.Fatalf("Previous mismatch")
	}
}

func TestSameMillisecondRecordsStayDistinct(t *testing.T) {
	l := New(WithClock(fixedClock(time.UnixMilli(1_700_000_000_000))))
	a, _ := l.Append(Entry{Command: &protocol.TextMessage{Text: "a"}})
	b, _ := l.Append(Entry{Command: &protocol.TextMessage{Text: "b"}})
	if a.Timestamp != b.Timestamp {
		t.Fatalf("expected equal timestamps from fixed clock")
	}
	if l.Len() != 2 {
		t.Fatalf("Len=%d, want 2", l.Len())
	}
	got, ok := l.Get(1)
	if !ok || got != a {
		t.Fatalf("Get(1) lost the first record")
	}
}

func TestResolveOnce(t *testing.T) {
	l := New()
	r, _ := l.Append(Entry{Command: &protocol.TextMessage{}})
	if _, resolved := r.Outcome(); resolved {
		t.Fatalf("new record is resolved")
	}
	if !r.Resolve(true) {
		t.Fatalf("first Resolve returned false")
	}
	if r.Resolve(false) {
		t.Fatalf("second Resolve returned true")
	}
	if !r.Executed() {
		t.Fatalf("record re-resolved to false")
	}
	select {
	case <-r.Done():
	default:
		t.Fatalf("Done not closed after Resolve")
	}
}

func TestLastExecutedBefore(t *testing.T) {
	l := New()
	a, _ := l.Append(Entry{Command: &protocol.TextMessage{}})
	b, _ := l.Append(Entry{Command: &protocol.TextMessage{}})
	c, _ := l.Append(Entry{Command: &protocol.TextMessage{}})
	if got := l.LastExecutedBefore(c); got != nil {
		t.Fatalf("expected nil, got %d", got.Sequence)
	}
	a.Resolve(true)
	b.Resolve(false)
	if got := l.LastExecutedBefore(c); got != a {
		t.Fatalf("expected record 1, got %v", got)
	}
	c.Resolve(true)
	if got := l.LastExecutedBefore(c); got != a {
		t.Fatalf("record must not match itself")
	}
}

func TestNonConcurrentAncestor(t *testing.T) {
	l := New()
	root, _ := l.Append(Entry{Command: &protocol.TouchMessage{Action: protocol.ActionMove}})
	d, _ := l.Append(Entry{Command: &protocol.TouchMessage{Action: protocol.ActionDown}})
	u, _ := l.Append(Entry{Command: &protocol.TouchMessage{Action: protocol.ActionUp}})
	d.SetConcurrent(true)
	u.SetConcurrent(true)
	if got := l.NonConcurrentAncestor(u); got != root {
		t.Fatalf("ancestor=%v, want root", got)
	}
	if got := l.NonConcurrentAncestor(root); got != nil {
		t.Fatalf("root ancestor=%v, want nil", got)
	}
}

func TestConcurrentAppendsAreUnique(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(Entry{Command: &protocol.TextMessage{}})
		}()
	}
	wg.Wait()

	recs := l.Records()
	if len(recs) != 64 {
		t.Fatalf("len=%d, want 64", len(recs))
	}
	for i, r := range recs {
		if r.Sequence != uint64(i+1) {
			t.Fatalf("record %d has sequence %d", i, r.Sequence)
		}
	}
}
