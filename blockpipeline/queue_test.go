package blockpipeline

import "testing"

func TestPendingQueueOrdersAscending(t *testing.T) {
	q := newPendingQueue()
	for _, h := range []uint64{105, 101, 103, 102, 104} {
		q.push(h)
	}
	var out []uint64
	for {
		h, ok := q.pop()
		if !ok {
			break
		}
		out = append(out, h)
	}
	want := []uint64{101, 102, 103, 104, 105}
	if len(out) != len(want) {
		t.Fatalf("unexpected length: %v", out)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("unexpected order: %v", out)
		}
	}
}

func TestPendingQueueDedupes(t *testing.T) {
	q := newPendingQueue()
	q.push(100)
	q.push(100)
	if q.len() != 1 {
		t.Fatalf("expected dedup, got len %d", q.len())
	}
}
