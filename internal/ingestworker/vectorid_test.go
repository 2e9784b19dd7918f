package ingestworker

import "testing"

func TestVectorIDDeterministic(t *testing.T) {
	a := vectorID("report.pdf", 42, 3)
	b := vectorID("report.pdf", 42, 3)
	if a != b {
		t.Fatalf("expected deterministic id, got %q and %q", a, b)
	}
}

func TestVectorIDDiffersByChunkIndex(t *testing.T) {
	a := vectorID("report.pdf", 42, 3)
	b := vectorID("report.pdf", 42, 4)
	if a == b {
		t.Fatalf("expected different ids for different chunk indexes, got %q", a)
	}
}

func TestVectorIDDiffersByParent(t *testing.T) {
	a := vectorID("report.pdf", 42, 3)
	b := vectorID("report.pdf", 43, 3)
	if a == b {
		t.Fatalf("expected different ids for different parents, got %q", a)
	}
}
