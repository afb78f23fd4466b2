package vwm

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/handles/handleutils"
)

func printStatistics(json *jwriter.ObjectState, stats *handleutils.DetailedStatistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("FullBlockCount").Int(stats.FullBlockCount)
	json.Name("HandleCount").Int(stats.HandleCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("HandleBytes").Int(stats.HandleBytes)

	if stats.BlockCount > 0 {
		json.Name("BlockHandleCountMin").Int(stats.BlockHandleCountMin)
		json.Name("BlockHandleCountMax").Int(stats.BlockHandleCountMax)
	}
}

func printBlocks(json *jwriter.ObjectState, name string, blocks []*HandleBlock) {
	arrayState := json.Name(name).Array()
	defer arrayState.End()

	for _, block := range blocks {
		obj := arrayState.Object()
		block.BlockJsonData(obj)
		obj.End()
	}
}

// BuildStatsString returns a JSON document describing the manager's block map, the shared block map
// and the allocator. When detailed is true every live block is listed.
func (m *Manager) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	objState := writer.Object()

	var localStats, sharedStats handleutils.DetailedStatistics
	localStats.Clear()
	sharedStats.Clear()
	m.Statistics(&localStats)
	m.language.SharedStatistics(&sharedStats)

	objState.Name("Flags").String(m.createFlags.String())
	objState.Name("ExecutionContexts").Int(m.ExecutionContextCount())
	objState.Name("TotalHandleAllocations").Int(int(m.TotalHandleAllocations()))

	var totalStats handleutils.DetailedStatistics
	totalStats.Clear()
	totalStats.AddDetailedStatistics(&localStats)
	totalStats.AddDetailedStatistics(&sharedStats)

	totalObj := objState.Name("Total").Object()
	printStatistics(&totalObj, &totalStats)
	totalObj.End()

	localObj := objState.Name("Local").Object()
	localObj.Name("MapSlots").Int(m.blockMap.len())
	printStatistics(&localObj, &localStats)
	if detailed {
		printBlocks(&localObj, "Blocks", m.blockMap.blocks())
	}
	localObj.End()

	sharedObj := objState.Name("Shared").Object()
	sharedObj.Name("MapSlots").Int(m.language.sharedMap.len())
	printStatistics(&sharedObj, &sharedStats)
	if detailed {
		printBlocks(&sharedObj, "Blocks", m.language.sharedMap.blocks())
	}
	sharedObj.End()

	allocatorObj := objState.Name("Allocator").Object()
	allocatorObj.Name("FreeBlocks").Int(m.language.allocator.FreeBlockCount())
	allocatorObj.Name("KeptAliveBlocks").Int(m.language.KeptAliveBlocks())
	allocatorObj.End()

	objState.End()

	return string(writer.Bytes())
}
