// Package memory holds everything a run learns that outlives it: the
// dual-tier selector cache, the heal-history ledger, DOM fingerprints for
// drift detection, and persisted run records with their artifacts.
package memory

import (
	"encoding/hex"
	"math/bits"
	"strings"

	"github.com/zeebo/blake3"
)

// StructureJS extracts a structural signature of the page: tag names, ids,
// and the first class of every element, in document order. Text content is
// deliberately excluded so content churn alone does not register as drift.
const StructureJS = `() => {
	const parts = [];
	const els = document.querySelectorAll('*');
	for (let i = 0; i < els.length && i < 4000; i++) {
		const el = els[i];
		let tok = el.tagName.toLowerCase();
		if (el.id) tok += '#' + el.id;
		else if (el.classList.length > 0) tok += '.' + el.classList[0];
		parts.push(tok);
	}
	return parts.join('>');
}`

// Fingerprint condenses a structural signature into a 256-bit simhash.
// Each token votes per bit position with its blake3 hash, so pages that
// share most of their structure land close in Hamming distance. A plain
// content hash would not work here: one changed element would flip half
// the bits.
func Fingerprint(structure string) [32]byte {
	var votes [256]int
	for _, token := range strings.Split(structure, ">") {
		if token == "" {
			continue
		}
		h := blake3.Sum256([]byte(token))
		for i := 0; i < 256; i++ {
			if h[i/8]&(1<<(uint(i)%8)) != 0 {
				votes[i]++
			} else {
				votes[i]--
			}
		}
	}
	var out [32]byte
	for i := 0; i < 256; i++ {
		if votes[i] > 0 {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

// FingerprintHex returns the hex form stored in cache rows and selector
// metadata prefixes.
func FingerprintHex(structure string) string {
	sum := Fingerprint(structure)
	return hex.EncodeToString(sum[:])
}

// ParseFingerprint decodes a hex fingerprint; ok is false on bad input.
func ParseFingerprint(s string) (fp [32]byte, ok bool) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return fp, false
	}
	copy(fp[:], raw)
	return fp, true
}

// DriftPercent measures how far two fingerprints diverge, as the Hamming
// distance over the 256 hash bits scaled to 0..100.
func DriftPercent(a, b [32]byte) float64 {
	if a == b {
		return 0
	}
	distance := 0
	for i := range a {
		distance += bits.OnesCount8(a[i] ^ b[i])
	}
	return float64(distance) / 256.0 * 100.0
}

// Drifted reports whether the structural change between two snapshots
// exceeds the profile threshold (a percentage in (0,100]).
func Drifted(prev, cur [32]byte, thresholdPercent float64) bool {
	return DriftPercent(prev, cur) > thresholdPercent
}
