package ids

import "testing"

func TestHexParseRoundTrip(t *testing.T) {
	var id NodeId
	id[0] = byte(EntityAccount)
	for i := 1; i < len(id); i++ {
		id[i] = byte(i)
	}
	hex := id.Hex()
	got, err := ParseNodeId(hex)
	if err != nil {
		t.Fatalf("ParseNodeId: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch: got %x want %x", got, id)
	}
}

func TestParseNodeIdWithoutPrefix(t *testing.T) {
	var id NodeId
	id[0] = byte(EntityPackage)
	hex := id.Hex()[2:] // strip "0x"
	got, err := ParseNodeId(hex)
	if err != nil {
		t.Fatalf("ParseNodeId: %v", err)
	}
	if got != id {
		t.Fatalf("round trip mismatch without prefix")
	}
}

func TestParseNodeIdRejectsWrongLength(t *testing.T) {
	if _, err := ParseNodeId("0xabcd"); err == nil {
		t.Fatalf("expected error for short input")
	}
}

func TestParseNodeIdRejectsInvalidHex(t *testing.T) {
	if _, err := ParseNodeId("0xzz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
}

func TestEntityTypeIsVirtual(t *testing.T) {
	if EntityAccount.IsVirtual() {
		t.Fatalf("EntityAccount should not be virtual")
	}
	if !EntityVirtualAccount.IsVirtual() {
		t.Fatalf("EntityVirtualAccount should be virtual")
	}
}

func TestDeriveVirtualRejectsNonVirtualEntity(t *testing.T) {
	if _, err := DeriveVirtual(EntityAccount, []byte("pubkey")); err == nil {
		t.Fatalf("expected error deriving a non-virtual entity type")
	}
}

func TestDeriveVirtualIsDeterministic(t *testing.T) {
	key := []byte("a-public-key")
	a, err := DeriveVirtual(EntityVirtualAccount, key)
	if err != nil {
		t.Fatalf("DeriveVirtual: %v", err)
	}
	b, err := DeriveVirtual(EntityVirtualAccount, key)
	if err != nil {
		t.Fatalf("DeriveVirtual: %v", err)
	}
	if a != b {
		t.Fatalf("DeriveVirtual should be deterministic for the same input")
	}
	if a.EntityType() != EntityVirtualAccount {
		t.Fatalf("derived id should carry the requested entity type")
	}
}

func TestAllocatorIsDeterministicPerTxHash(t *testing.T) {
	hash := [32]byte{1, 2, 3}
	a1 := NewAllocator(hash)
	a2 := NewAllocator(hash)

	id1, err := a1.Next(EntityGenericComponent)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	id2, err := a2.Next(EntityGenericComponent)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("two allocators seeded with the same hash should mint identical first ids")
	}

	id3, err := a1.Next(EntityGenericComponent)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if id3 == id1 {
		t.Fatalf("successive allocations from the same allocator must differ")
	}
}
