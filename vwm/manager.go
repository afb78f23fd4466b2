package vwm

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/handles/handleutils"
	"github.com/vkngwrapper/handles/vwm/internal/utils"
)

// Manager converts managed values into wrappers and wrappers into handles for one runtime
// context. It owns the block map for exclusive handles; shared handles are registered with the
// Language.
type Manager struct {
	logger         *slog.Logger
	language       *Language
	collector      Collector
	createFlags    CreateFlags
	isSharedObject func(object any) bool

	falseWrapper *Wrapper
	trueWrapper  *Wrapper
	nilWrapper   *Wrapper
	undefWrapper *Wrapper

	blockMap *blockMap

	contextsMutex utils.OptionalLock
	contexts      *swiss.Map[uint64, *ExecutionContext]
	nextContextID atomic.Uint64

	handleAllocations atomic.Uint64
}

func (m *Manager) Language() *Language { return m.language }

func (m *Manager) Flags() CreateFlags { return m.createFlags }

func (m *Manager) TrueWrapper() *Wrapper  { return m.trueWrapper }
func (m *Manager) FalseWrapper() *Wrapper { return m.falseWrapper }
func (m *Manager) NilWrapper() *Wrapper   { return m.nilWrapper }
func (m *Manager) UndefWrapper() *Wrapper { return m.undefWrapper }

// Wrap returns the wrapper for object. Booleans, nil and Undefined resolve to the manager's
// singleton wrappers; int64 and float64 values are handed to WrapLong and WrapDouble. Every other
// value gets a fresh wrapper without a handle.
func (m *Manager) Wrap(object any) *Wrapper {
	switch value := object.(type) {
	case nil:
		return m.nilWrapper
	case bool:
		if value {
			return m.trueWrapper
		}
		return m.falseWrapper
	case UndefinedValue:
		return m.undefWrapper
	case int64:
		return m.WrapLong(value)
	case float64:
		return m.WrapDouble(value)
	}

	return newWrapper(object, UnsetHandle)
}

// WrapLong returns a new wrapper for value. Long wrappers are not cached: native code tracks
// them by handle, not by identity.
func (m *Manager) WrapLong(value int64) *Wrapper {
	return newWrapper(value, UnsetHandle)
}

func (m *Manager) WrapDouble(value float64) *Wrapper {
	return newWrapper(value, UnsetHandle)
}

// NewExecutionContext creates the state for one thread or fiber of the embedding runtime. Its
// block holder is created lazily by the first handle allocation.
func (m *Manager) NewExecutionContext() *ExecutionContext {
	ctx := &ExecutionContext{
		id:      m.nextContextID.Add(1),
		manager: m,
	}

	m.contextsMutex.Lock()
	m.contexts.Put(ctx.id, ctx)
	m.contextsMutex.Unlock()

	return ctx
}

// ExecutionContextCount returns the number of execution contexts that have not been closed
func (m *Manager) ExecutionContextCount() int {
	m.contextsMutex.Lock()
	defer m.contextsMutex.Unlock()

	return m.contexts.Count()
}

func (m *Manager) retireExecutionContext(ctx *ExecutionContext) {
	m.contextsMutex.Lock()
	m.contexts.Delete(ctx.id)
	m.contextsMutex.Unlock()

	holder := ctx.holder
	if holder == nil {
		return
	}
	ctx.holder = nil

	if holder.exclusiveBlock != nil {
		m.collector.QueueForMarking(holder.exclusiveBlock)
	}
	if holder.sharedBlock != nil {
		m.language.collector.QueueForMarking(holder.sharedBlock)
	}
}

// BlockHolder returns the block holder of ctx, creating it if this is the context's first allocation
func (m *Manager) BlockHolder(ctx *ExecutionContext) *BlockHolder {
	ctx.checkOwner(m)

	if ctx.holder == nil {
		ctx.holder = &BlockHolder{}
	}
	return ctx.holder
}

// HandleFor returns the handle of wrapper, allocating one from ctx if the wrapper has none yet.
// shared selects the process-shared block map, which must only be used for immutable values that
// other execution contexts may see.
func (m *Manager) HandleFor(wrapper *Wrapper, ctx *ExecutionContext, shared bool) (int64, error) {
	if handle := wrapper.Handle(); handle != UnsetHandle {
		return handle, nil
	}
	return m.AllocateHandle(wrapper, ctx, shared)
}

// ToNative is HandleFor with sharedness decided by the manager's shared-object predicate
func (m *Manager) ToNative(wrapper *Wrapper, ctx *ExecutionContext) (int64, error) {
	if handle := wrapper.Handle(); handle != UnsetHandle {
		return handle, nil
	}
	return m.AllocateHandle(wrapper, ctx, m.isSharedObject(wrapper.Object()))
}

// AllocateHandle assigns a new handle to wrapper from the block ctx has open. The wrapper must not
// already have a handle; violating this panics. The only error is address space exhaustion, after
// which no further blocks can be created.
func (m *Manager) AllocateHandle(wrapper *Wrapper, ctx *ExecutionContext, shared bool) (int64, error) {
	if handle := wrapper.Handle(); handle != UnsetHandle {
		panic(errors.AssertionFailedf("attempted to allocate a handle for a wrapper that already has handle %#x", handle))
	}

	holder := m.BlockHolder(ctx)

	block := holder.block(shared)
	if block == nil || block.IsFull() {
		if block != nil {
			m.logger.Debug("Manager::AllocateHandle retiring full block",
				slog.Int("Index", block.Index()),
				slog.Bool("Shared", shared),
			)
			m.collectorFor(shared).QueueForMarking(block)
			holder.setBlock(shared, nil)
		}

		var err error
		block, err = m.createBlock(shared)
		if err != nil {
			return UnsetHandle, err
		}
		holder.setBlock(shared, block)
	}

	handle, allocated := block.setHandleOnWrapper(wrapper)
	if allocated && m.createFlags&CreateRecordStatistics != 0 {
		m.RecordHandleAllocation()
	}
	return handle, nil
}

func (m *Manager) collectorFor(shared bool) Collector {
	if shared {
		return m.language.collector
	}
	return m.collector
}

func (m *Manager) createBlock(shared bool) (*HandleBlock, error) {
	base, err := m.language.allocator.GetFreeBlock()
	if err != nil {
		m.logger.Error("Manager::createBlock failed to obtain a block base", slog.Any("error", err))
		return nil, err
	}

	block := newHandleBlock(base)
	if m.createFlags&CreateKeepHandlesAlive != 0 {
		m.language.keepBlockAlive(block)
	}

	if shared {
		err = m.language.addToSharedBlockMap(block)
	} else {
		err = m.addToBlockMap(block)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Debug("Manager::createBlock",
		slog.Int("Index", block.Index()),
		slog.Int64("Base", block.Base()),
		slog.Bool("Shared", shared),
	)
	handleutils.DebugValidate(m)

	return block, nil
}

// addToBlockMap registers a block holding exclusive handles. Its finalizer is registered with
// the collector after the map lock has been released.
func (m *Manager) addToBlockMap(block *HandleBlock) error {
	entry, err := m.blockMap.add(block)
	if err != nil {
		return err
	}

	localMap := m.blockMap
	allocator := m.language.allocator
	m.collector.AddFinalizer(m, block, func() {
		localMap.release(entry, allocator)
	})

	return nil
}

// WrapperForHandle resolves a handle received from native code. Sentinel handles resolve to the
// singleton wrappers. Tagged longs, handles outside every live block and handles of reclaimed
// blocks are reported as not found.
func (m *Manager) WrapperForHandle(handle int64) (*Wrapper, bool) {
	switch handle {
	case FalseHandle:
		return m.falseWrapper, true
	case TrueHandle:
		return m.trueWrapper, true
	case NilHandle:
		return m.nilWrapper, true
	case UndefHandle:
		return m.undefWrapper, true
	}

	if !IsTaggedObject(handle) || handle < AllocationBase {
		return nil, false
	}

	block := m.blockFromMap(BlockIndex(handle))
	if block == nil {
		return nil, false
	}

	wrapper := block.Wrapper(handle)
	return wrapper, wrapper != nil
}

func (m *Manager) blockFromMap(index int64) *HandleBlock {
	// A block is registered in at most one of the two maps
	if block := m.blockMap.get(index); block != nil {
		return block
	}
	return m.language.sharedBlock(index)
}

// Unwrap converts a handle back into the value it denotes: the untagged value of a tagged long, the
// value of a sentinel, or the object of the wrapper the handle addresses.
func (m *Manager) Unwrap(handle int64) (any, bool) {
	if IsTaggedLong(handle) {
		return UntagLong(handle), true
	}

	wrapper, ok := m.WrapperForHandle(handle)
	if !ok {
		return nil, false
	}
	return wrapper.Object(), true
}

// FreeAllBlocks returns every block in the manager's block map to the allocator without waiting for
// the collector. Every execution context of this manager must have been closed; calling it while one
// is open panics. Handles from the freed blocks are not found afterwards. The shared block map is not
// touched.
func (m *Manager) FreeAllBlocks() {
	m.logger.Debug("Manager::FreeAllBlocks")

	if open := m.ExecutionContextCount(); open > 0 {
		panic(errors.AssertionFailedf("attempted to free all blocks while %d execution contexts are still open", open))
	}

	freed := 0
	for _, entry := range m.blockMap.liveEntries() {
		block := entry.block.Value()
		if block == nil {
			// Already collected, the finalizer returns its base
			continue
		}

		if m.blockMap.release(entry, m.language.allocator) {
			m.language.releaseKeepAlive(block)
			freed++
		}
	}

	m.logger.Debug("Manager::FreeAllBlocks freed blocks", slog.Int("Count", freed))
	handleutils.DebugValidate(m)
}

// RecordHandleAllocation increments the handle allocation counter
func (m *Manager) RecordHandleAllocation() {
	m.handleAllocations.Add(1)
}

// TotalHandleAllocations returns the number of handles allocated while CreateRecordStatistics
// was active
func (m *Manager) TotalHandleAllocations() uint64 {
	return m.handleAllocations.Load()
}

// Statistics sums the usage of every live block in the manager's block map
func (m *Manager) Statistics(stats *handleutils.DetailedStatistics) {
	m.blockMap.addStatistics(stats)
}

// Validate checks the manager's block map, the language's shared state, and that no block index
// is registered in both maps
func (m *Manager) Validate() error {
	if err := m.blockMap.Validate(); err != nil {
		return err
	}
	if err := m.language.Validate(); err != nil {
		return err
	}

	for _, entry := range m.blockMap.liveEntries() {
		if m.language.sharedMap.has(int64(entry.index)) {
			return errors.Errorf("block index %d is registered in both the local and the shared block map", entry.index)
		}
	}

	return nil
}
