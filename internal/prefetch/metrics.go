package prefetch

import "time"

// Metrics are the raw counters owned by a Queue.
type Metrics struct {
	SuccessCount int
	ErrorCount   int
	TotalTime    time.Duration // Sum over successful loads
	CacheHits    int
}

// Snapshot is the reported view of Metrics.
type Snapshot struct {
	SuccessCount        int     `json:"success_count"`
	ErrorCount          int     `json:"error_count"`
	CacheHits           int     `json:"cache_hits"`
	TotalTimeMs         float64 `json:"total_time_ms"`
	AverageLoadTimeMs   float64 `json:"average_load_time_ms"`
	CacheHitRatePercent float64 `json:"cache_hit_rate_percent"`
}

// Snapshot derives the average load time and cache hit rate. Both are 0
// when nothing has succeeded.
func (m Metrics) Snapshot() Snapshot {
	s := Snapshot{
		SuccessCount: m.SuccessCount,
		ErrorCount:   m.ErrorCount,
		CacheHits:    m.CacheHits,
		TotalTimeMs:  millis(m.TotalTime),
	}
	if m.SuccessCount > 0 {
		s.AverageLoadTimeMs = s.TotalTimeMs / float64(m.SuccessCount)
		s.CacheHitRatePercent = float64(m.CacheHits) / float64(m.SuccessCount) * 100
	}
	return s
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (m *Metrics) recordSuccess(d, cacheHitThreshold time.Duration) (cacheHit bool) {
	m.SuccessCount++
	m.TotalTime += d
	if d < cacheHitThreshold {
		m.CacheHits++
		return true
	}
	return false
}

func (m *Metrics) recordFailure() {
	m.ErrorCount++
}
