package vwm

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/handles/handleutils"
)

// blockEntry is a block map slot. It refers to its block weakly, so the map alone never keeps a
// block alive. released is set by whichever of FreeAllBlocks or the block finalizer returns base to
// the allocator first; the other becomes a no-op.
type blockEntry struct {
	block    weak.Pointer[HandleBlock]
	index    int
	base     int64
	released atomic.Bool
}

const blockMapGrowth = 64

// blockMap indexes blocks by BlockIndex. The slice grows to cover the largest index registered
// and never shrinks. It is always locked, since release runs on the collector's goroutine.
type blockMap struct {
	mutex   sync.RWMutex
	entries []*blockEntry
	name    string
}

func newBlockMap(name string) *blockMap {
	return &blockMap{name: name}
}

func (m *blockMap) add(block *HandleBlock) (*blockEntry, error) {
	entry := &blockEntry{
		block: weak.Make(block),
		index: block.Index(),
		base:  block.Base(),
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry.index >= cap(m.entries) {
		grown := make([]*blockEntry, entry.index+1, handleutils.AlignUp(entry.index+1, blockMapGrowth))
		copy(grown, m.entries)
		m.entries = grown
	} else if entry.index >= len(m.entries) {
		m.entries = m.entries[:entry.index+1]
	}

	if existing := m.entries[entry.index]; existing != nil && !existing.released.Load() {
		return nil, errors.AssertionFailedf("%s block map already holds live block %#x at index %d", m.name, existing.base, entry.index)
	}

	m.entries[entry.index] = entry
	return entry, nil
}

func (m *blockMap) entry(index int64) *blockEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if index < 0 || index >= int64(len(m.entries)) {
		return nil
	}
	return m.entries[index]
}

// get returns the live block at index, or nil if the slot is empty, released, or its block has
// already been collected
func (m *blockMap) get(index int64) *HandleBlock {
	entry := m.entry(index)
	if entry == nil || entry.released.Load() {
		return nil
	}
	return entry.block.Value()
}

func (m *blockMap) has(index int64) bool {
	return m.get(index) != nil
}

// clear empties the slot for entry, unless the slot has since been taken by another entry
func (m *blockMap) clear(entry *blockEntry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry.index < len(m.entries) && m.entries[entry.index] == entry {
		m.entries[entry.index] = nil
	}
}

// release returns entry's base to allocator exactly once and empties its slot. It reports whether
// this call was the one that released it.
func (m *blockMap) release(entry *blockEntry, allocator *BlockAllocator) bool {
	if !entry.released.CompareAndSwap(false, true) {
		return false
	}

	m.clear(entry)
	allocator.AddFreeBlock(entry.base)
	return true
}

// liveEntries returns every entry that has not been released
func (m *blockMap) liveEntries() []*blockEntry {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var entries []*blockEntry
	for _, entry := range m.entries {
		if entry != nil && !entry.released.Load() {
			entries = append(entries, entry)
		}
	}
	return entries
}

// blocks returns every block that is still reachable
func (m *blockMap) blocks() []*HandleBlock {
	var blocks []*HandleBlock
	for _, entry := range m.liveEntries() {
		if block := entry.block.Value(); block != nil {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func (m *blockMap) len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.entries)
}

func (m *blockMap) addStatistics(stats *handleutils.DetailedStatistics) {
	for _, block := range m.blocks() {
		block.addStatistics(stats)
	}
}

func (m *blockMap) Validate() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for index, entry := range m.entries {
		if entry == nil {
			continue
		}
		if entry.index != index {
			return errors.Errorf("%s block map holds the entry for index %d at index %d", m.name, entry.index, index)
		}
		if BlockIndex(entry.base) != int64(index) {
			return errors.Errorf("%s block map holds base %#x at index %d", m.name, entry.base, index)
		}

		block := entry.block.Value()
		if block == nil || entry.released.Load() {
			continue
		}
		if block.Base() != entry.base {
			return errors.Errorf("%s block map entry at index %d has base %#x but its block has base %#x", m.name, index, entry.base, block.Base())
		}
		if err := block.Validate(); err != nil {
			return errors.Wrapf(err, "%s block map", m.name)
		}
	}

	return nil
}
