package cache

import "time"

// chooseEviction picks the key to evict from candidates according to
// strategy. accessTimes supplies the per-key access-time ring used by the
// ADAPTIVE strategy's predicted-future-access term. now is the reference
// time recency/elapsed figures are computed against.
func chooseEviction(candidates map[string]*entry, strategy Strategy, accessTimes map[string][]time.Time, now time.Time) string {
	var victim string
	var best float64
	first := true

	for key, e := range candidates {
		var score float64
		switch strategy {
		case LRU:
			// Oldest last_accessed wins: score increases the further back
			// last_accessed is, so "max score" still selects the oldest.
			score = -float64(e.lastAccessed.UnixNano())
		case LFU:
			score = -float64(e.accessCount)
		case FIFO:
			score = -float64(e.createdAt.UnixNano())
		default: // Adaptive
			score = adaptiveScore(e, accessTimes[key], now)
		}

		if first || score > best {
			best = score
			victim = key
			first = false
		}
	}

	return victim
}

// adaptiveScore implements the composite eviction score:
//
//	score = 0.4*recency_s + 0.3*(1/access_count) + 0.2*(size_bytes/1024) - 0.1*predicted_future_access
//
// Highest score is evicted (least valuable).
func adaptiveScore(e *entry, history []time.Time, now time.Time) float64 {
	recencySeconds := now.Sub(e.lastAccessed).Seconds()

	accessCount := e.accessCount
	if accessCount < 1 {
		accessCount = 1
	}

	predicted := predictedFutureAccess(history, now)

	return 0.4*recencySeconds +
		0.3*(1.0/float64(accessCount)) +
		0.2*(float64(e.sizeBytes)/1024.0) -
		0.1*predicted
}

// predictedFutureAccess estimates the probability the key will be accessed
// again soon, given its recorded access-time history. With fewer than two
// recorded accesses there isn't enough signal, so it returns 0.
func predictedFutureAccess(history []time.Time, now time.Time) float64 {
	if len(history) < 2 {
		return 0
	}

	var totalInterval time.Duration
	for i := 1; i < len(history); i++ {
		totalInterval += history[i].Sub(history[i-1])
	}
	meanInterval := totalInterval / time.Duration(len(history)-1)
	if meanInterval <= 0 {
		return 0
	}

	lastAccess := history[len(history)-1]
	elapsed := now.Sub(lastAccess)

	if elapsed < meanInterval {
		return 1 - (float64(elapsed) / float64(meanInterval))
	}
	return 0
}
