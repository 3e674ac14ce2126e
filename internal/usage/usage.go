// Package usage is the Cost & Metrics Accountant (C9): per-turn cost
// computation from a versioned per-model rate table, month-to-date
// budget checks, and periodic metrics snapshotting — grounded in the
// teacher's internal/usage package (Usage/Cost/Tracker), extended with
// the rate-table versioning and UNDER/NEAR/OVER budget verdict spec.md
// requires.
package usage

// Usage is the token count for a single turn, the same shape as
// protocol.FrameCost but decoupled from the wire format.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// Total returns the total token count across all four counters.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + other.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
	}
}

// Cost is a model's per-million-token pricing.
type Cost struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheRead  float64 `yaml:"cache_read"`
	CacheWrite float64 `yaml:"cache_write"`
}

// Estimate computes u's dollar cost under this pricing.
func (c Cost) Estimate(u Usage) float64 {
	total := float64(u.InputTokens)*c.Input +
		float64(u.OutputTokens)*c.Output +
		float64(u.CacheReadTokens)*c.CacheRead +
		float64(u.CacheWriteTokens)*c.CacheWrite
	return total / 1_000_000
}
