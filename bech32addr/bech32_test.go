package bech32addr

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	words, err := ConvertBits(data, 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	encoded, err := Encode("bbnvalcons", words)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hrp, decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hrp != "bbnvalcons" {
		t.Fatalf("unexpected hrp: have %q want %q", hrp, "bbnvalcons")
	}
	back, err := ConvertBits(decoded, 5, 8, false)
	if err != nil {
		t.Fatalf("convert bits back: %v", err)
	}
	if len(back) != len(data) {
		t.Fatalf("unexpected round-trip length: have %d want %d", len(back), len(data))
	}
	for i := range data {
		if back[i] != data[i] {
			t.Fatalf("round trip mismatch at %d: have %d want %d", i, back[i], data[i])
		}
	}
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	if _, _, err := Decode("bbnvalcons1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzzzzzz"); err == nil {
		t.Fatalf("expected checksum error")
	}
}

func TestConsensusAddressDeterministic(t *testing.T) {
	pubkey := []byte("a fake consensus public key, 32 bytes long!!!!")
	addr1, err := ConsensusAddress("bbnvalcons", pubkey)
	if err != nil {
		t.Fatalf("consensus address: %v", err)
	}
	addr2, err := ConsensusAddress("bbnvalcons", pubkey)
	if err != nil {
		t.Fatalf("consensus address: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("expected deterministic address, got %q and %q", addr1, addr2)
	}
	hex1 := ConsensusHex(pubkey)
	hex2 := ConsensusHex(pubkey)
	if hex1 != hex2 || len(hex1) != 40 {
		t.Fatalf("unexpected consensus hex: %q", hex1)
	}
}
