// Package suppression answers "is this email or domain suppressed" for the
// import pipeline.
//
// Domain-scope entries are snapshotted once per batch into a DomainSet:
//
//	Layer 1: Bloom filter, O(1), resolves nearly every negative lookup
//	Layer 2: Sorted MD5 array, O(log n), verifies bloom positives
//
// Global-scope entries are keyed by canonical email identity and are checked
// per row through an IdentityLookup, since they can only match emails that
// already exist.
package suppression

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"math"
	"sort"
)

// =============================================================================
// MD5 HASH TYPE
// =============================================================================

// MD5Hash is a 16-byte MD5 digest in binary form. Fixed-size arrays avoid
// string headers and heap allocations in the hot path.
type MD5Hash [16]byte

// HashKey hashes an already-normalized key (a domain string).
func HashKey(key string) MD5Hash {
	return md5.Sum([]byte(key))
}

// Compare returns -1, 0, or 1 if h is less than, equal to, or greater than other.
func (h MD5Hash) Compare(other MD5Hash) int {
	return bytes.Compare(h[:], other[:])
}

// =============================================================================
// BLOOM FILTER
// =============================================================================

// BloomFilter is a probabilistic set. False positives are possible and are
// verified by the sorted layer; false negatives never happen.
type BloomFilter struct {
	bits      []uint64
	size      uint64
	hashCount uint
	count     uint64
}

// NewBloomFilter sizes a filter for n elements at false positive rate p.
//
//	m = -n * ln(p) / ln(2)^2
//	k = (m/n) * ln(2)
func NewBloomFilter(n uint64, p float64) *BloomFilter {
	if n == 0 {
		n = 1000
	}
	if p <= 0 || p >= 1 {
		p = 0.001
	}

	m := uint64(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	m = ((m + 63) / 64) * 64

	k := uint(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	return &BloomFilter{
		bits:      make([]uint64, m/64),
		size:      m,
		hashCount: k,
	}
}

// Add inserts h into the filter.
func (bf *BloomFilter) Add(h MD5Hash) {
	for i := uint(0); i < bf.hashCount; i++ {
		pos := bf.hash(h, i) % bf.size
		bf.bits[pos/64] |= 1 << (pos % 64)
	}
	bf.count++
}

// MayContain returns false only if h is definitely absent.
func (bf *BloomFilter) MayContain(h MD5Hash) bool {
	for i := uint(0); i < bf.hashCount; i++ {
		pos := bf.hash(h, i) % bf.size
		if bf.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// EstimatedFalsePositiveRate is (1 - e^(-kn/m))^k for the current fill.
func (bf *BloomFilter) EstimatedFalsePositiveRate() float64 {
	if bf.count == 0 {
		return 0
	}
	k := float64(bf.hashCount)
	return math.Pow(1-math.Exp(-k*float64(bf.count)/float64(bf.size)), k)
}

// hash is double hashing over the two halves of the digest: h1 + i*h2.
func (bf *BloomFilter) hash(h MD5Hash, i uint) uint64 {
	h1 := binary.LittleEndian.Uint64(h[:8])
	h2 := binary.LittleEndian.Uint64(h[8:])
	return h1 + uint64(i)*h2
}

// =============================================================================
// DOMAIN SET
// =============================================================================

// DomainSet is an immutable snapshot of suppressed domains. It is safe for
// concurrent reads.
type DomainSet struct {
	filter *BloomFilter
	hashes []MD5Hash
}

// NewDomainSet builds a snapshot from normalized domain strings. An empty
// input yields a set that contains nothing.
func NewDomainSet(domains []string) *DomainSet {
	hashes := make([]MD5Hash, 0, len(domains))
	for _, d := range domains {
		if d == "" {
			continue
		}
		hashes = append(hashes, HashKey(d))
	}
	unique := deduplicateAndSort(hashes)

	filter := NewBloomFilter(uint64(len(unique)), 0.001)
	for _, h := range unique {
		filter.Add(h)
	}
	return &DomainSet{filter: filter, hashes: unique}
}

// Contains reports whether domain is suppressed.
func (s *DomainSet) Contains(domain string) bool {
	if s == nil || len(s.hashes) == 0 || domain == "" {
		return false
	}
	h := HashKey(domain)
	if !s.filter.MayContain(h) {
		return false
	}
	return binarySearch(s.hashes, h)
}

// Len returns the number of distinct domains in the set.
func (s *DomainSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.hashes)
}

func binarySearch(hashes []MD5Hash, target MD5Hash) bool {
	i := sort.Search(len(hashes), func(i int) bool {
		return hashes[i].Compare(target) >= 0
	})
	return i < len(hashes) && hashes[i] == target
}

// deduplicateAndSort sorts in place and drops repeats.
func deduplicateAndSort(hashes []MD5Hash) []MD5Hash {
	if len(hashes) == 0 {
		return hashes
	}
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Compare(hashes[j]) < 0
	})
	unique := hashes[:1]
	for i := 1; i < len(hashes); i++ {
		if hashes[i] != unique[len(unique)-1] {
			unique = append(unique, hashes[i])
		}
	}
	return unique
}
