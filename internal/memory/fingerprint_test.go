package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func structure(tokens ...string) string { return strings.Join(tokens, ">") }

func TestFingerprintStable(t *testing.T) {
	s := structure("html", "body", "div#root", "form#login", "input#user", "input#pw", "button.submit")
	assert.Equal(t, Fingerprint(s), Fingerprint(s))
	assert.Len(t, FingerprintHex(s), 64)
}

func TestDriftPercentTracksStructuralChange(t *testing.T) {
	base := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		base = append(base, "div.row"+string(rune('a'+i%26)))
	}
	a := Fingerprint(structure(base...))

	// One element renamed barely moves the needle.
	minor := append([]string{}, base...)
	minor[10] = "div.renamed"
	b := Fingerprint(structure(minor...))
	assert.Less(t, DriftPercent(a, b), 20.0)

	// A rebuilt page lands far away.
	rebuilt := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		rebuilt = append(rebuilt, "section.totally-different"+string(rune('a'+i%26)))
	}
	c := Fingerprint(structure(rebuilt...))
	assert.Greater(t, DriftPercent(a, c), 30.0)
}

func TestDriftedThresholds(t *testing.T) {
	a := Fingerprint(structure("div#a", "div#b", "div#c"))
	assert.False(t, Drifted(a, a, 35))

	var b [32]byte
	for i := range b {
		b[i] = ^a[i]
	}
	assert.True(t, Drifted(a, b, 72))
	assert.InDelta(t, 100.0, DriftPercent(a, b), 0.001)
}

func TestParseFingerprint(t *testing.T) {
	s := structure("html", "body")
	fp, ok := ParseFingerprint(FingerprintHex(s))
	assert.True(t, ok)
	assert.Equal(t, Fingerprint(s), fp)

	_, ok = ParseFingerprint("not-hex")
	assert.False(t, ok)
}
