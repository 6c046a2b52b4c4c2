package server

// AdaptiveChunkStrategy sizes the record batches of one DoGet stream. It
// starts small so the first rows of a long neighbor list arrive quickly,
// then grows geometrically up to maxSize for throughput.
type AdaptiveChunkStrategy struct {
	minSize      int
	maxSize      int
	growthFactor float64
	currentSize  int
}

// NewAdaptiveChunkStrategy creates a chunking strategy. Sizes below 1 are
// raised to 1 and maxSize is raised to minSize.
func NewAdaptiveChunkStrategy(minSize, maxSize int, growthFactor float64) *AdaptiveChunkStrategy {
	if minSize < 1 {
		minSize = 1
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	if growthFactor < 1 {
		growthFactor = 1
	}
	return &AdaptiveChunkStrategy{
		minSize:      minSize,
		maxSize:      maxSize,
		growthFactor: growthFactor,
		currentSize:  minSize,
	}
}

// NextChunkSize returns the next chunk size and advances the strategy.
func (s *AdaptiveChunkStrategy) NextChunkSize() int {
	current := s.currentSize
	next := int(float64(current) * s.growthFactor)
	if next > s.maxSize {
		next = s.maxSize
	}
	s.currentSize = next
	return current
}
