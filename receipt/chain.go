package receipt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/utils"
)

// DomainChain separates chain links from every other digest.
const DomainChain = "axiom-chain-v1"

// ErrChainBroken is returned when a chain link does not match its receipt.
var ErrChainBroken = errors.New("receipt chain broken")

// Entry is one link of a receipt chain.
type Entry struct {
	Index   uint64               `json:"index"`
	Prev    axiom.Digest         `json:"prev"`
	Link    axiom.Digest         `json:"link"`
	Receipt *axiom.ReceiptBundle `json:"receipt"`
}

// Chain is an append-only hash chain of receipts:
// link_i = H(frame(domain) || frame(link_{i-1}) || frame(i) || frame(combined_i)).
// It is safe for concurrent use.
type Chain struct {
	mu      sync.RWMutex
	hash    Hash
	entries []Entry
}

// NewChain returns an empty chain.
func NewChain(h Hash) *Chain {
	if h.New == nil {
		h = DefaultHash()
	}
	return &Chain{hash: h}
}

func (c *Chain) link(prev []byte, index uint64, combined []byte) []byte {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return c.hash.Sum(DomainChain, prev, idx[:], combined)
}

// Append adds a receipt and returns its entry.
func (c *Chain) Append(r *axiom.ReceiptBundle) (Entry, error) {
	if r == nil || len(r.CombinedDigest) == 0 {
		return Entry{}, fmt.Errorf("%w: receipt without combined digest", ErrReceiptTampered)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var prev []byte
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].Link
	}
	index := uint64(len(c.entries))
	e := Entry{
		Index:   index,
		Prev:    prev,
		Link:    c.link(prev, index, r.CombinedDigest),
		Receipt: r,
	}
	c.entries = append(c.entries, e)
	return e, nil
}

// Head returns the latest link, or nil for an empty chain.
func (c *Chain) Head() axiom.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1].Link
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of the chain.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries...)
}

// Verify recomputes every link.
func (c *Chain) Verify() error {
	return VerifyEntries(c.hash, c.Entries())
}

// VerifyEntries checks a chain exported with Entries, for example after it
// was loaded from storage.
func VerifyEntries(h Hash, entries []Entry) error {
	c := &Chain{hash: h}
	var prev []byte
	for i, e := range entries {
		if e.Index != uint64(i) {
			return fmt.Errorf("%w: entry %d has index %d", ErrChainBroken, i, e.Index)
		}
		if !utils.ConstantTimeEqual(e.Prev, prev) {
			return fmt.Errorf("%w: entry %d does not follow its predecessor", ErrChainBroken, i)
		}
		if e.Receipt == nil || !utils.ConstantTimeEqual(e.Link, c.link(prev, e.Index, e.Receipt.CombinedDigest)) {
			return fmt.Errorf("%w: entry %d link mismatch", ErrChainBroken, i)
		}
		prev = e.Link
	}
	return nil
}
