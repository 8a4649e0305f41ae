package tracking

import "sync"

// ClickSample is a single click captured for heatmap/session analysis
type ClickSample struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	ElementID   string `json:"elementId,omitempty"`
	ElementType string `json:"elementType,omitempty"`
	ViewportW   int    `json:"viewportW"`
	ViewportH   int    `json:"viewportH"`
	Timestamp   int64  `json:"timestamp"`
}

// MouseMoveSample is a throttled pointer position sample
type MouseMoveSample struct {
	X         int   `json:"x"`
	Y         int   `json:"y"`
	ViewportW int   `json:"viewportW"`
	ViewportH int   `json:"viewportH"`
	Timestamp int64 `json:"timestamp"`
}

// ScrollSample records scroll depth as a percentage of the scrollable height
type ScrollSample struct {
	ScrollPercent float64 `json:"scrollPercent"`
	Timestamp     int64   `json:"timestamp"`
}

// SessionBatch is the payload flushed to the backend once per flush cycle
type SessionBatch struct {
	SessionID       string            `json:"sessionId"`
	UserID          string            `json:"userId,omitempty"`
	Timestamp       int64             `json:"timestamp"`
	Page            string            `json:"page"`
	MouseMovements  []MouseMoveSample `json:"mouseMovements"`
	Clicks          []ClickSample     `json:"clicks"`
	ScrollPositions []ScrollSample    `json:"scrollPositions"`
}

// Empty reports whether the batch carries no samples at all
func (b SessionBatch) Empty() bool {
	return len(b.MouseMovements) == 0 && len(b.Clicks) == 0 && len(b.ScrollPositions) == 0
}

// SampleBuffers accumulates heatmap samples between flush cycles. Drain swaps
// the slices out atomically (replace-the-reference) so an in-progress append
// can never interleave with a flush
type SampleBuffers struct {
	mu      sync.Mutex
	clicks  []ClickSample
	moves   []MouseMoveSample
	scrolls []ScrollSample
}

// NewSampleBuffers creates empty sample buffers
func NewSampleBuffers() *SampleBuffers {
	return &SampleBuffers{}
}

// AddClick appends a click sample
func (b *SampleBuffers) AddClick(s ClickSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clicks = append(b.clicks, s)
}

// AddMove appends a mouse movement sample
func (b *SampleBuffers) AddMove(s MouseMoveSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.moves = append(b.moves, s)
}

// AddScroll appends a scroll sample
func (b *SampleBuffers) AddScroll(s ScrollSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrolls = append(b.scrolls, s)
}

// Drain returns all accumulated samples and leaves the buffers empty. The
// returned slices are owned by the caller
func (b *SampleBuffers) Drain() (clicks []ClickSample, moves []MouseMoveSample, scrolls []ScrollSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clicks, moves, scrolls = b.clicks, b.moves, b.scrolls
	b.clicks, b.moves, b.scrolls = nil, nil, nil
	return clicks, moves, scrolls
}

// Len returns the total number of buffered samples
func (b *SampleBuffers) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clicks) + len(b.moves) + len(b.scrolls)
}
