// Package bech32addr implements bech32 encoding and the Cosmos-style
// derivation of a validator's consensus address from its consensus
// public key: SHA-256 of the raw key, truncated to 20 bytes, bech32
// encoded under the network's "valcons" human-readable prefix.
//
// The checksum algorithm below mirrors BIP-173, generalized so the
// human-readable prefix is a caller-supplied parameter instead of a
// single hardcoded chain prefix.
package bech32addr

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

const (
	charset   = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	separator = '1'
)

var generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i, g := range generator {
			if ((top >> uint(i)) & 1) == 1 {
				chk ^= g
			}
		}
	}
	return chk
}

func hrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func verifyChecksum(hrp string, data []byte) bool {
	vals := hrpExpand(hrp)
	vals = append(vals, data...)
	return polymod(vals) == 1
}

func createChecksum(hrp string, data []byte) [6]byte {
	vals := hrpExpand(hrp)
	vals = append(vals, data...)
	vals = append(vals, 0, 0, 0, 0, 0, 0)
	mod := polymod(vals) ^ 1

	var out [6]byte
	for i := 0; i < 6; i++ {
		out[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return out
}

// ConvertBits regroups a byte slice from `from`-bit groups to `to`-bit
// groups, padding the tail when pad is true.
func ConvertBits(data []byte, from, to uint, pad bool) ([]byte, error) {
	var acc, bits uint
	maxValue := (uint(1) << to) - 1
	out := make([]byte, 0, len(data))

	for _, v := range data {
		value := uint(v)
		if value>>from != 0 {
			return nil, fmt.Errorf("bech32addr: invalid data range: %d (max bits %d)", value, from)
		}
		acc = (acc << from) | value
		bits += from
		for bits >= to {
			bits -= to
			out = append(out, byte((acc>>bits)&maxValue))
		}
	}

	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(to-bits))&maxValue))
		}
	} else if bits >= from {
		return nil, fmt.Errorf("bech32addr: illegal zero padding")
	} else if ((acc << (to - bits)) & maxValue) != 0 {
		return nil, fmt.Errorf("bech32addr: non-zero padding")
	}

	return out, nil
}

// Encode bech32-encodes data under the given human-readable prefix.
func Encode(hrp string, data []byte) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("bech32addr: human readable part is empty")
	}
	for i := 0; i < len(hrp); i++ {
		c := hrp[i]
		if c < 33 || c > 126 {
			return "", fmt.Errorf("bech32addr: invalid HRP character: %d", c)
		}
	}
	if strings.ToUpper(hrp) != hrp && strings.ToLower(hrp) != hrp {
		return "", fmt.Errorf("bech32addr: mix case is not allowed in HRP")
	}

	hrp = strings.ToLower(hrp)
	combined := make([]byte, 0, len(data)+6)
	combined = append(combined, data...)
	checksum := createChecksum(hrp, data)
	combined = append(combined, checksum[:]...)

	var b strings.Builder
	b.Grow(len(hrp) + 1 + len(combined))
	b.WriteString(hrp)
	b.WriteByte(separator)
	for _, v := range combined {
		if int(v) >= len(charset) {
			return "", fmt.Errorf("bech32addr: invalid value: %d", v)
		}
		b.WriteByte(charset[v])
	}
	return b.String(), nil
}

// Decode splits a bech32 string into its human-readable prefix and data,
// verifying the checksum.
func Decode(bech string) (string, []byte, error) {
	if strings.ToUpper(bech) != bech && strings.ToLower(bech) != bech {
		return "", nil, fmt.Errorf("bech32addr: mix case is not allowed")
	}

	pos := strings.LastIndexByte(bech, separator)
	if pos < 1 || pos+7 > len(bech) {
		return "", nil, fmt.Errorf("bech32addr: invalid separator position")
	}

	hrp := bech[:pos]
	data := make([]byte, 0, len(bech)-pos-1)
	for i := pos + 1; i < len(bech); i++ {
		idx := strings.IndexByte(charset, bech[i])
		if idx < 0 {
			return "", nil, fmt.Errorf("bech32addr: invalid bech32 character: %q", bech[i])
		}
		data = append(data, byte(idx))
	}

	if !verifyChecksum(hrp, data) {
		return "", nil, fmt.Errorf("bech32addr: invalid checksum")
	}

	return hrp, data[:len(data)-6], nil
}

// ConsensusAddress derives a Tendermint-style "valcons" bech32 address
// from a raw consensus public key: SHA-256, truncated to 20 bytes,
// regrouped to 5-bit words and bech32-encoded under hrp.
func ConsensusAddress(hrp string, pubkey []byte) (string, error) {
	sum := sha256.Sum256(pubkey)
	truncated := sum[:20]
	words, err := ConvertBits(truncated, 8, 5, true)
	if err != nil {
		return "", err
	}
	return Encode(hrp, words)
}

// ConsensusHex returns the uppercase hex form of the truncated SHA-256
// digest, matching the "consensus hex" address form the directory
// tracks alongside the bech32 form.
func ConsensusHex(pubkey []byte) string {
	sum := sha256.Sum256(pubkey)
	truncated := sum[:20]
	return fmt.Sprintf("%X", truncated)
}
