package vwm_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/handles/vwm"
	"golang.org/x/exp/slog"
)

func createManager(b *testing.B, flags vwm.CreateFlags) (*vwm.Manager, *vwm.RuntimeCollector) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	collector := vwm.NewRuntimeCollector()
	language := vwm.NewLanguage(logger, vwm.LanguageOptions{Collector: collector})
	return vwm.New(logger, language, vwm.CreateOptions{Flags: flags}), collector
}

func BenchmarkManager_AllocateHandle(b *testing.B) {
	manager, collector := createManager(b, 0)
	ctx := manager.NewExecutionContext()
	defer ctx.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := manager.AllocateHandle(manager.WrapLong(int64(i)), ctx, false)
		require.NoError(b, err)

		if i%vwm.BlockSize == 0 {
			collector.RunMarkers()
		}
	}
	b.StopTimer()
	require.NoError(b, manager.Validate())
}

func BenchmarkManager_WrapperForHandle(b *testing.B) {
	manager, _ := createManager(b, 0)
	ctx := manager.NewExecutionContext()
	defer ctx.Close()

	wrappers := make([]*vwm.Wrapper, 3*vwm.BlockSize)
	handles := make([]int64, len(wrappers))
	for i := range wrappers {
		wrappers[i] = manager.Wrap(sharedString("value"))
		handle, err := manager.HandleFor(wrappers[i], ctx, i%2 == 0)
		require.NoError(b, err)
		handles[i] = handle
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, ok := manager.WrapperForHandle(handles[i%len(handles)])
		if !ok {
			b.Fatalf("handle %#x not found", handles[i%len(handles)])
		}
	}
	b.StopTimer()
}

func BenchmarkManager_ParallelToNative(b *testing.B) {
	manager, _ := createManager(b, vwm.CreateRecordStatistics)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := manager.NewExecutionContext()
		defer ctx.Close()

		for pb.Next() {
			if _, err := manager.ToNative(manager.Wrap("value"), ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
	b.StopTimer()
	require.NoError(b, manager.Validate())
}

func BenchmarkManager_BuildStatsString(b *testing.B) {
	manager, _ := createManager(b, vwm.CreateRecordStatistics)
	ctx := manager.NewExecutionContext()
	defer ctx.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := manager.ToNative(manager.WrapDouble(float64(i)), ctx)
		require.NoError(b, err)

		str := manager.BuildStatsString(true)
		require.NotEmpty(b, str)
	}
	b.StopTimer()
}
