// Package langset implements an order-independent set of language codes.
//
// Codes are canonicalized through golang.org/x/text/language so that "pt-br",
// "pt_BR" and "pt-BR" are the same member, and a Set is always kept sorted and
// deduplicated. Equality and hashing therefore never depend on the order a
// caller listed the languages in.
package langset

import (
	"fmt"
	"iter"
	"math/bits"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// MaxSubsetEnumeration bounds the set size for which ProperSubsets is
// computed. Enumeration is 2^n - 2; twenty languages already means about a
// million lookups.
const MaxSubsetEnumeration = 20

// Set is an immutable, sorted, deduplicated list of canonical language codes.
type Set struct {
	codes []string
}

// Canonical returns the canonical form of a single language code.
func Canonical(code string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(code, "_", "-"))
	if trimmed == "" {
		return "", fmt.Errorf("empty language code")
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return tag.String(), nil
}

// Parse canonicalizes codes into a Set.
func Parse(codes ...string) (Set, error) {
	ret := make([]string, 0, len(codes))
	for _, code := range codes {
		canonical, err := Canonical(code)
		if err != nil {
			return Set{}, err
		}
		ret = append(ret, canonical)
	}
	return fromCanonical(ret), nil
}

// New builds a Set from codes already known to be valid. Invalid codes are
// dropped.
func New(codes ...string) Set {
	ret := make([]string, 0, len(codes))
	for _, code := range codes {
		if canonical, err := Canonical(code); err == nil {
			ret = append(ret, canonical)
		}
	}
	return fromCanonical(ret)
}

func fromCanonical(codes []string) Set {
	slices.Sort(codes)
	return Set{codes: slices.Compact(codes)}
}

func (s Set) Len() int {
	return len(s.codes)
}

func (s Set) IsEmpty() bool {
	return len(s.codes) == 0
}

// Codes returns a copy of the sorted members.
func (s Set) Codes() []string {
	return slices.Clone(s.codes)
}

func (s Set) Contains(code string) bool {
	_, found := slices.BinarySearch(s.codes, code)
	return found
}

// Without returns s minus a single code.
func (s Set) Without(code string) Set {
	return s.Minus(Set{codes: []string{code}})
}

// Minus returns the members of s that are not in other.
func (s Set) Minus(other Set) Set {
	ret := make([]string, 0, len(s.codes))
	for _, code := range s.codes {
		if !other.Contains(code) {
			ret = append(ret, code)
		}
	}
	return Set{codes: ret}
}

func (s Set) Union(other Set) Set {
	ret := make([]string, 0, len(s.codes)+len(other.codes))
	ret = append(ret, s.codes...)
	ret = append(ret, other.codes...)
	return fromCanonical(ret)
}

func (s Set) Equal(other Set) bool {
	return slices.Equal(s.codes, other.codes)
}

// String joins the sorted members with commas. It is part of the cache key
// digest input and must stay stable.
func (s Set) String() string {
	return strings.Join(s.codes, ",")
}

// ProperSubsets yields every non-empty proper subset of s using a bitmask
// over the sorted members: 2^n - 2 subsets for n >= 2, none for n <= 1.
// Subsets are built lazily, so a consumer that stops early pays only for what
// it read. Sets larger than MaxSubsetEnumeration yield nothing.
func (s Set) ProperSubsets() iter.Seq[Set] {
	return func(yield func(Set) bool) {
		n := len(s.codes)
		if n < 2 || n > MaxSubsetEnumeration {
			return
		}

		full := uint32(1)<<n - 1
		for mask := uint32(1); mask < full; mask++ {
			codes := make([]string, 0, bits.OnesCount32(mask))
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					codes = append(codes, s.codes[i])
				}
			}
			// members stay sorted because the bits walk s.codes in order
			if !yield(Set{codes: codes}) {
				return
			}
		}
	}
}

func (s Set) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Set) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = Set{}
		return nil
	}
	parsed, err := Parse(strings.Split(string(text), ",")...)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
