package ringbuffer

import "testing"

func TestPushEvictsFromFront(t *testing.T) {
	b := New(10)
	b.Push(Chunk{Seq: 1, Data: []byte("0123456789")}) // exactly at cap
	if b.TotalBytes() != 10 {
		t.Fatalf("expected 10 bytes, got %d", b.TotalBytes())
	}

	b.Push(Chunk{Seq: 2, Data: []byte("abcde")})
	if b.Len() != 1 {
		t.Fatalf("expected eviction to leave 1 chunk, got %d", b.Len())
	}
	if string(b.Tail()) != "abcde" {
		t.Fatalf("unexpected tail: %q", b.Tail())
	}
}

func TestPushNeverEvictsTheOnlyChunk(t *testing.T) {
	b := New(4)
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'x'
	}
	b.Push(Chunk{Seq: 1, Data: big})

	if b.Len() != 1 {
		t.Fatalf("expected the oversized single chunk to survive, got %d chunks", b.Len())
	}
	if b.TotalBytes() != 100 {
		t.Fatalf("expected 100 bytes retained despite cap, got %d", b.TotalBytes())
	}
}

func TestTailChunksLimitsCount(t *testing.T) {
	b := New(1 << 20)
	for i := int64(1); i <= 15; i++ {
		b.Push(Chunk{Seq: i, Data: []byte("x")})
	}

	last := b.TailChunks(10)
	if len(last) != 10 {
		t.Fatalf("expected 10 chunks, got %d", len(last))
	}
	if last[0].Seq != 6 || last[9].Seq != 15 {
		t.Fatalf("unexpected window: first=%d last=%d", last[0].Seq, last[9].Seq)
	}
}
