package crypto_test

import (
	"bytes"
	"strings"
	"testing"

	"rewardnet/crypto"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := crypto.NewAddress(crypto.RWDPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(crypto.RWDPrefix)+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := crypto.DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), raw) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), raw)
	}
	if decoded.Prefix() != crypto.RWDPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := crypto.DecodeAddress("not-an-address"); err == nil {
		t.Fatal("expected error for malformed input")
	}
	if _, err := crypto.DecodeAddress(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestNewAddressPanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for short address")
		}
	}()
	crypto.NewAddress(crypto.RWDPrefix, []byte{0x01})
}
