package service

import (
	"fmt"
	"time"

	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/config"
	"github.com/bvenu-lab/mangalm-sales-assist-sub000/internal/schema"
)

// DedupPolicy decides what happens to a row whose content hash is
// already in the deduplication index.
type DedupPolicy string

const (
	// DedupReject counts the duplicate and excludes it from the write.
	DedupReject DedupPolicy = "reject"
	// DedupFlag writes the duplicate with its duplicate marker set.
	DedupFlag DedupPolicy = "flag"
)

// ParseDedupPolicy validates a policy string.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(s) {
	case DedupReject, DedupFlag:
		return DedupPolicy(s), nil
	case "":
		return DedupReject, nil
	}
	return "", fmt.Errorf("unknown dedup policy %q", s)
}

// JobOptions carries the per-job tuning of the pipeline. Zero fields are
// filled from configuration defaults by Sanitize.
type JobOptions struct {
	Rules              schema.RuleSet
	ChunkSize          int64
	BatchSize          int
	Workers            int
	ErrorRateThreshold float64
	MinErrorSample     int64
	RetryCount         int
	RetryBackoff       time.Duration
	ChunkTimeout       time.Duration
	MaxRowErrors       int
	DedupPolicy        DedupPolicy
}

// OptionsFromConfig builds the default job options from configuration.
func OptionsFromConfig(cfg *config.IngestConfig) JobOptions {
	policy, err := ParseDedupPolicy(cfg.DedupPolicy)
	if err != nil {
		policy = DedupReject
	}
	return JobOptions{
		Rules:              schema.DefaultRuleSet(),
		ChunkSize:          int64(cfg.ChunkSize),
		BatchSize:          cfg.BatchSize,
		Workers:            cfg.Workers,
		ErrorRateThreshold: cfg.ErrorRateThreshold,
		MinErrorSample:     int64(cfg.MinErrorSample),
		RetryCount:         cfg.RetryCount,
		RetryBackoff:       cfg.RetryBackoff,
		ChunkTimeout:       cfg.ChunkTimeout,
		MaxRowErrors:       cfg.MaxRowErrors,
		DedupPolicy:        policy,
	}
}

// Sanitize replaces unusable values with working defaults so a partially
// specified request cannot stall the pipeline.
func (o JobOptions) Sanitize() JobOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.ErrorRateThreshold <= 0 || o.ErrorRateThreshold > 1 {
		o.ErrorRateThreshold = 0.20
	}
	if o.MinErrorSample <= 0 {
		o.MinErrorSample = 100
	}
	if o.RetryCount <= 0 {
		o.RetryCount = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = 60 * time.Second
	}
	if o.MaxRowErrors <= 0 {
		o.MaxRowErrors = 100
	}
	if o.DedupPolicy != DedupFlag {
		o.DedupPolicy = DedupReject
	}
	if o.Rules.Aliases == nil {
		o.Rules = schema.DefaultRuleSet().Merge(o.Rules)
	}
	return o
}
