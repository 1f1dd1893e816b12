package coordinator

import (
	"container/heap"
	"time"

	"github.com/agentruntime/coordinator/priority"
)

// LLMResult is returned to every caller of QueueRequest, whether dispatched
// immediately or assembled into a batch.
type LLMResult struct {
	RequestID  string
	OK         bool
	Content    string
	Error      string
	Cost       float64
	Tokens     int
	Duration   time.Duration
	WasBatched bool

	// Response carries the full raw provider response for a failed request,
	// for diagnostics (§4.7.3: a per-item parse failure must retain the
	// combined body it couldn't find its marker in). Empty on success.
	Response string
}

// batchRequest is the internal unit placed on the batching priority queue.
type batchRequest struct {
	requestID      string
	priority       priority.Priority
	requestType    string
	prompt         string
	context        map[string]interface{}
	createdAt      time.Time
	timeout        time.Duration
	estimatedCost  float64
	estimatedTokens int

	// resultCh receives this request's result once its sub-batch is
	// dispatched. The prompt templates read their type-specific fields
	// (participants, max exchanges, etc.) directly from context.
	resultCh chan LLMResult
}

// requestHeap is a strict priority queue with FIFO tie-break by createdAt,
// mirroring the concurrent processor's task queue.
type requestHeap []*batchRequest

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].createdAt.Before(h[j].createdAt)
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x interface{}) { *h = append(*h, x.(*batchRequest)) }

func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*requestHeap)(nil)

// estimateTokens approximates token count from word count with the
// words*1.3 heuristic, truncated and plus one (so an empty prompt is 1).
func estimateTokens(prompt string) int {
	words := 0
	inWord := false
	for _, r := range prompt {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return int(float64(words)*1.3) + 1
}
