package vwm

import (
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/handles/handleutils"
	"github.com/vkngwrapper/handles/vwm/internal/utils"
)

// LanguageOptions contains optional settings when creating a Language
type LanguageOptions struct {
	// Collector receives the finalizers of shared blocks and is the default collector for managers
	// created against this language. A RuntimeCollector is used when none is provided.
	Collector Collector
	// ExternallySynchronized disables the keep-alive set's mutex. The allocator and the shared block
	// map stay locked because block finalizers reach them from the collector's goroutine.
	ExternallySynchronized bool
}

// Language holds the process-wide handle state: the block allocator, the block map for shared
// objects, and the keep-alive set used by CreateKeepHandlesAlive. Every Manager in the process
// is created against one Language.
type Language struct {
	logger    *slog.Logger
	collector Collector

	allocator *BlockAllocator
	sharedMap *blockMap

	keepAliveMutex utils.OptionalLock
	keepAlive      *swiss.Map[*HandleBlock, struct{}]
}

func NewLanguage(logger *slog.Logger, options LanguageOptions) *Language {
	if logger == nil {
		logger = discardLogger()
	}

	collector := options.Collector
	if collector == nil {
		collector = NewRuntimeCollector()
	}

	useMutex := !options.ExternallySynchronized
	return &Language{
		logger:         logger,
		collector:      collector,
		allocator:      NewBlockAllocator(),
		sharedMap:      newBlockMap("shared"),
		keepAliveMutex: utils.NewOptionalLock(useMutex),
		keepAlive:      swiss.NewMap[*HandleBlock, struct{}](16),
	}
}

func (l *Language) Allocator() *BlockAllocator { return l.allocator }
func (l *Language) Collector() Collector       { return l.collector }

// addToSharedBlockMap registers a block holding shared handles. Its finalizer is registered with
// the language's collector after the map lock has been released.
func (l *Language) addToSharedBlockMap(block *HandleBlock) error {
	entry, err := l.sharedMap.add(block)
	if err != nil {
		return err
	}

	sharedMap := l.sharedMap
	allocator := l.allocator
	l.collector.AddFinalizer(l, block, func() {
		sharedMap.release(entry, allocator)
	})

	return nil
}

func (l *Language) sharedBlock(index int64) *HandleBlock {
	return l.sharedMap.get(index)
}

func (l *Language) keepBlockAlive(block *HandleBlock) {
	l.keepAliveMutex.Lock()
	defer l.keepAliveMutex.Unlock()

	l.keepAlive.Put(block, struct{}{})
}

func (l *Language) releaseKeepAlive(block *HandleBlock) {
	l.keepAliveMutex.Lock()
	defer l.keepAliveMutex.Unlock()

	l.keepAlive.Delete(block)
}

// KeptAliveBlocks returns the number of blocks pinned by managers created with CreateKeepHandlesAlive
func (l *Language) KeptAliveBlocks() int {
	l.keepAliveMutex.Lock()
	defer l.keepAliveMutex.Unlock()

	return l.keepAlive.Count()
}

// SharedStatistics sums the usage of every live block in the shared block map
func (l *Language) SharedStatistics(stats *handleutils.DetailedStatistics) {
	l.sharedMap.addStatistics(stats)
}

func (l *Language) Validate() error {
	if err := l.allocator.Validate(); err != nil {
		return err
	}
	return l.sharedMap.Validate()
}
