package models

import "time"

// MetricsSnapshot is a lightweight summary of process metrics.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	ProviderCalls            uint64    `json:"providerCalls"`
	ProviderFailures         uint64    `json:"providerFailures"`
	Classifications          uint64    `json:"classifications"`
	Executions               uint64    `json:"executions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
