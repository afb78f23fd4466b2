package handleutils

import "math"

// Statistics sums the block and handle usage of one or more block maps
type Statistics struct {
	BlockCount  int
	HandleCount int
	BlockBytes  int
	HandleBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.HandleCount = 0
	s.BlockBytes = 0
	s.HandleBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.HandleCount += other.HandleCount
	s.BlockBytes += other.BlockBytes
	s.HandleBytes += other.HandleBytes
}

type DetailedStatistics struct {
	Statistics
	FullBlockCount      int
	BlockHandleCountMin int
	BlockHandleCountMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FullBlockCount = 0
	s.BlockHandleCountMin = math.MaxInt
	s.BlockHandleCountMax = 0
}

// AddBlock records a single block holding handleCount handles, each slotSize bytes wide, out of a
// capacity of blockSize handles
func (s *DetailedStatistics) AddBlock(handleCount, blockSize, slotSize int) {
	s.BlockCount++
	s.BlockBytes += blockSize * slotSize
	s.HandleCount += handleCount
	s.HandleBytes += handleCount * slotSize

	if handleCount == blockSize {
		s.FullBlockCount++
	}

	if handleCount < s.BlockHandleCountMin {
		s.BlockHandleCountMin = handleCount
	}

	if handleCount > s.BlockHandleCountMax {
		s.BlockHandleCountMax = handleCount
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FullBlockCount += other.FullBlockCount

	if other.BlockHandleCountMin < s.BlockHandleCountMin {
		s.BlockHandleCountMin = other.BlockHandleCountMin
	}

	if other.BlockHandleCountMax > s.BlockHandleCountMax {
		s.BlockHandleCountMax = other.BlockHandleCountMax
	}
}
