package substate

import (
	"testing"

	"txruntime/engine/ids"
)

func node(b byte) ids.NodeId {
	var n ids.NodeId
	n[0] = b
	return n
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	s := NewStore()
	addr := Address{Node: node(1), Partition: Partition(0), Key: FieldKey(0)}
	if err := s.Write(addr, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok := s.Read(addr)
	if !ok || string(got.Value) != "hello" {
		t.Fatalf("expected to read back the written value, got %q ok=%v", got.Value, ok)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1 on first write, got %d", got.Version)
	}
}

func TestReadMissingAddressReturnsNotOk(t *testing.T) {
	s := NewStore()
	_, ok := s.Read(Address{Node: node(2), Partition: Partition(0), Key: FieldKey(0)})
	if ok {
		t.Fatalf("expected ok=false reading an address never written")
	}
}

func TestWriteBumpsVersionOnOverwrite(t *testing.T) {
	s := NewStore()
	addr := Address{Node: node(3), Partition: Partition(0), Key: BytesKey([]byte("k"))}
	if err := s.Write(addr, []byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(addr, []byte("v2")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok := s.Read(addr)
	if !ok {
		t.Fatalf("expected the address to be readable")
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2 after a second write, got %d", got.Version)
	}
	if string(got.Value) != "v2" {
		t.Fatalf("expected the latest value to win, got %q", got.Value)
	}
}

func TestScanPrefixFindsMatchingKeysInOrder(t *testing.T) {
	s := NewStore()
	n := node(4)
	if err := s.Write(Address{Node: n, Partition: Partition(1), Key: BytesKey([]byte("aa1"))}, []byte("1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(Address{Node: n, Partition: Partition(1), Key: BytesKey([]byte("aa2"))}, []byte("2")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Write(Address{Node: n, Partition: Partition(1), Key: BytesKey([]byte("bb1"))}, []byte("3")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := s.ScanPrefix(n, Partition(1), []byte("aa"))
	if len(got) != 2 {
		t.Fatalf("expected 2 matches under prefix \"aa\", got %d", len(got))
	}
}

func TestJournalLenAndSnapshotTrackWrites(t *testing.T) {
	s := NewStore()
	if s.JournalLen() != 0 || s.Snapshot() != 0 {
		t.Fatalf("expected an empty store to report zero journal length and snapshot size")
	}
	addr := Address{Node: node(5), Partition: Partition(0), Key: FieldKey(0)}
	if err := s.Write(addr, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if s.JournalLen() != 1 {
		t.Fatalf("expected journal length 1 after one write, got %d", s.JournalLen())
	}
	if s.Snapshot() != 1 {
		t.Fatalf("expected snapshot size 1 after one write, got %d", s.Snapshot())
	}
	if err := s.Write(addr, []byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if s.Snapshot() != 1 {
		t.Fatalf("expected snapshot size to stay 1 after overwriting the same address, got %d", s.Snapshot())
	}
	if s.JournalLen() != 2 {
		t.Fatalf("expected journal length to grow with every write, got %d", s.JournalLen())
	}
}
