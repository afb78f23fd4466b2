package vwm

import (
	"io"
	"math/bits"
	"strings"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/handles/vwm/internal/utils"
)

// CreateFlags indicate specific manager behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = make(map[CreateFlags]string)

func (f CreateFlags) Register(str string) {
	createFlagsMapping[f] = str
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for remaining := uint32(f); remaining != 0; {
		bit := CreateFlags(1 << bits.TrailingZeros32(remaining))
		remaining &^= uint32(bit)

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = "Unknown"
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// CreateExternallySynchronized ensures that the manager's execution context registry will not be
	// synchronized internally. The consumer must guarantee that execution contexts are created and
	// closed from only one goroutine at a time. The block map stays locked regardless, because block
	// finalizers run on the collector's goroutine.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateKeepHandlesAlive pins every block the manager creates in the language's keep-alive set,
	// so handles stay resolvable even after their wrappers become unreachable. Blocks are only unpinned
	// by FreeAllBlocks. This is a debugging aid for native code that holds on to handles it should not.
	CreateKeepHandlesAlive
	// CreateRecordStatistics enables the handle allocation counter read by TotalHandleAllocations
	CreateRecordStatistics
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
	CreateKeepHandlesAlive.Register("CreateKeepHandlesAlive")
	CreateRecordStatistics.Register("CreateRecordStatistics")
}

// CreateOptions contains optional settings when creating a Manager
type CreateOptions struct {
	// Flags indicates specific manager behaviors to activate or deactivate
	Flags CreateFlags

	// IsSharedObject decides whether ToNative routes a wrapper to the process-shared block map.
	// When nil, values implementing SharedObject are shared.
	IsSharedObject func(object any) bool

	// Collector receives the marking requests and finalizers for this manager's blocks. It
	// defaults to the language's collector.
	Collector Collector
}

func isSharedObject(object any) bool {
	_, shared := object.(SharedObject)
	return shared
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New creates a new Manager
//
// logger - Receives debug output for block lifecycle events. May be nil.
//
// language - The process-wide handle state shared by every manager in the process
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, language *Language, options CreateOptions) *Manager {
	if language == nil {
		panic("vwm.New requires a language")
	}
	if logger == nil {
		logger = discardLogger()
	}

	useMutex := options.Flags&CreateExternallySynchronized == 0

	manager := &Manager{
		logger:         logger,
		language:       language,
		createFlags:    options.Flags,
		isSharedObject: options.IsSharedObject,
		collector:      options.Collector,
		blockMap:       newBlockMap("local"),
		contextsMutex:  utils.NewOptionalLock(useMutex),
		contexts:       swiss.NewMap[uint64, *ExecutionContext](8),
	}

	if manager.isSharedObject == nil {
		manager.isSharedObject = isSharedObject
	}
	if manager.collector == nil {
		manager.collector = language.Collector()
	}

	manager.falseWrapper = newWrapper(false, FalseHandle)
	manager.trueWrapper = newWrapper(true, TrueHandle)
	manager.nilWrapper = newWrapper(nil, NilHandle)
	manager.undefWrapper = newWrapper(Undefined, UndefHandle)

	logger.Debug("Manager::New", slog.String("Flags", options.Flags.String()))

	return manager
}
