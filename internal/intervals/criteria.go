// Package intervals implements the per-filter interval ledger: coverage
// tracking, merge-on-insert, and filter-subsumption queries for both
// direct log filters and factory child-contract filters.
package intervals

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goran-ethernal/eventstore/internal/storeerr"
)

// Slot is one position of a LogFilterCriteria (the address slot, or one of
// the four topic slots). A slot is either a wildcard (matches anything) or
// a non-empty positive set of lowercase hex values, matched by OR.
type Slot struct {
	Wildcard bool
	Values   []string // canonical form: lowercase, deduplicated, sorted
}

// Wildcard returns the wildcard slot.
func Wildcard() Slot {
	return Slot{Wildcard: true}
}

// Set builds a positive-match slot from one or more hex values, normalizing
// to the canonical lowercase/sorted/deduplicated form used for hashing and
// subset comparison. An empty values list yields a wildcard slot, matching
// spec.md's "absence is wildcard" rule for topic positions.
func Set(values ...string) Slot {
	if len(values) == 0 {
		return Wildcard()
	}

	seen := make(map[string]struct{}, len(values))
	normalized := make([]string, 0, len(values))
	for _, v := range values {
		lv := strings.ToLower(v)
		if _, ok := seen[lv]; ok {
			continue
		}
		seen[lv] = struct{}{}
		normalized = append(normalized, lv)
	}
	sort.Strings(normalized)

	return Slot{Values: normalized}
}

// Subset reports whether slot a's matched set is a subset of slot b's: b
// is wildcard, or a is a concrete set whose every value is in b's set.
func (a Slot) Subset(b Slot) bool {
	if b.Wildcard {
		return true
	}
	if a.Wildcard {
		return false
	}

	bSet := make(map[string]struct{}, len(b.Values))
	for _, v := range b.Values {
		bSet[v] = struct{}{}
	}
	for _, v := range a.Values {
		if _, ok := bSet[v]; !ok {
			return false
		}
	}
	return true
}

// Intersect returns the slot matching only values both a and b match,
// and whether that intersection is empty (a concrete/concrete pair with
// no shared values, meaning the combined filter matches nothing).
func (a Slot) Intersect(b Slot) (Slot, bool) {
	if a.Wildcard {
		return b, false
	}
	if b.Wildcard {
		return a, false
	}

	bSet := make(map[string]struct{}, len(b.Values))
	for _, v := range b.Values {
		bSet[v] = struct{}{}
	}
	var shared []string
	for _, v := range a.Values {
		if _, ok := bSet[v]; ok {
			shared = append(shared, v)
		}
	}
	if len(shared) == 0 {
		return Slot{}, true
	}
	return Slot{Values: shared}, false
}

func (a Slot) canonicalValue() interface{} {
	if a.Wildcard {
		return nil
	}
	return a.Values
}

// LogFilterCriteria is the canonical tuple (address*, topic0*, topic1*,
// topic2*, topic3*) described in spec.md §3.
type LogFilterCriteria struct {
	Address Slot
	Topics  [4]Slot
}

// NewCriteria builds a LogFilterCriteria from raw address/topic value
// lists. A nil or empty list for any slot means wildcard. Per spec.md's
// "topic slot has more than 4 positions" rule, more than 4 topic slots
// fails synchronously rather than silently dropping the excess.
func NewCriteria(address []string, topics [][]string) (LogFilterCriteria, error) {
	if len(topics) > 4 {
		return LogFilterCriteria{}, storeerr.InvalidCriteria("intervals.NewCriteria",
			fmt.Errorf("%d topic slots given, at most 4 allowed", len(topics)))
	}

	c := LogFilterCriteria{Address: Set(address...)}
	for i := 0; i < len(topics); i++ {
		c.Topics[i] = Set(topics[i]...)
	}
	for i := len(topics); i < 4; i++ {
		c.Topics[i] = Wildcard()
	}
	return c, nil
}

// Subset reports whether criteria a is a subset of criteria b per spec.md
// Invariant 3: every positive slot of a is a subset of b's corresponding
// slot, and every wildcard slot of b is wildcard or a's slot is also
// covered (handled per-slot by Slot.Subset).
func (a LogFilterCriteria) Subset(b LogFilterCriteria) bool {
	if !a.Address.Subset(b.Address) {
		return false
	}
	for i := range a.Topics {
		if !a.Topics[i].Subset(b.Topics[i]) {
			return false
		}
	}
	return true
}

// canonicalForm is the ordered, JSON-marshalable shape used both for the
// filter id hash and for the stored criteria_json debug column. A struct
// with fixed field order (not a map) keeps the encoding deterministic
// without needing sorted-keys JSON support.
type canonicalForm struct {
	Address interface{}    `json:"address"`
	Topics  [4]interface{} `json:"topics"`
}

// CanonicalJSON renders c in its canonical serialized form: sets sorted
// lexicographically, wildcards rendered as null.
func (c LogFilterCriteria) CanonicalJSON() (string, error) {
	form := canonicalForm{Address: c.Address.canonicalValue()}
	for i := range c.Topics {
		form.Topics[i] = c.Topics[i].canonicalValue()
	}
	b, err := json.Marshal(form)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FilterID computes the canonical filter id for c under chainID: a stable
// hash over (chainID, canonicalJSON(c)), used as the storage key for
// interval tracking. cespare/xxhash/v2 exposes a 64-bit digest; two
// digests (over the plain and salted payload) are concatenated to reach
// the 128 bits of keyspace spec.md §6 asks for, rendered as 32 lowercase
// hex characters.
func FilterID(chainID uint64, c LogFilterCriteria) (string, error) {
	payload, err := c.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return hashPayload(chainID, payload), nil
}

func hashPayload(chainID uint64, payload string) string {
	var buf strings.Builder
	buf.WriteString(payload)

	base := xxhash.New()
	_ = writeChainID(base, chainID)
	_, _ = base.WriteString(payload)
	lo := base.Sum64()

	salted := xxhash.New()
	_ = writeChainID(salted, chainID)
	_, _ = salted.WriteString(payload)
	_, _ = salted.WriteString("\x00eventstore-filter-id-salt")
	hi := salted.Sum64()

	return encodeHex128(hi, lo)
}

func writeChainID(h *xxhash.Digest, chainID uint64) error {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(chainID >> (8 * i))
	}
	_, err := h.Write(b[:])
	return err
}

func encodeHex128(hi, lo uint64) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 32)
	for i := 15; i >= 0; i-- {
		out[i] = hexDigits[lo&0xf]
		lo >>= 4
	}
	for i := 31; i >= 16; i-- {
		out[i] = hexDigits[hi&0xf]
		hi >>= 4
	}
	return string(out)
}
