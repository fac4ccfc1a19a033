package domain

import "time"

// PerformanceMetrics reports request processing cost.
type PerformanceMetrics struct {
	AvgProcessingTimeUs uint64 `json:"avg_processing_time_us" yaml:"avg_processing_time_us"`
	MaxProcessingTimeUs uint64 `json:"max_processing_time_us" yaml:"max_processing_time_us"`
	MemoryUsageBytes    uint64 `json:"memory_usage_bytes" yaml:"memory_usage_bytes"`
}

// Stats is a point-in-time copy of the filtering counters.
type Stats struct {
	TotalRequests   uint64             `json:"total_requests" yaml:"total_requests"`
	BlockedRequests uint64             `json:"blocked_requests" yaml:"blocked_requests"`
	AllowedRequests uint64             `json:"allowed_requests" yaml:"allowed_requests"`
	DomainsBlocked  map[string]uint64  `json:"domains_blocked" yaml:"domains_blocked"`
	RequestTypes    map[string]uint64  `json:"request_types" yaml:"request_types"`
	Performance     PerformanceMetrics `json:"performance" yaml:"performance"`
	StartTime       time.Time          `json:"start_time" yaml:"start_time"`
	LastUpdated     time.Time          `json:"last_updated" yaml:"last_updated"`
}

// BlockRate returns the blocked share of all requests in [0,1].
func (s Stats) BlockRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.BlockedRequests) / float64(s.TotalRequests)
}
