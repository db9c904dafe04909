package analysisclient

import (
	"context"
	"sync"
	"time"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/logs"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPerSecond      = 8
	DefaultCapacity       = 1000
	DefaultLockTimeout    = 10 * time.Second
	DefaultQuiesceTimeout = 30 * time.Second
)

// Don't log upload failures more often than this
const errorLogInterval = 15 * time.Second

type BufferOptions struct {
	PerSecond      int              // Token bucket rate and capacity
	Capacity       int              // Maximum number of pending frames
	LockTimeout    time.Duration    // Maximum wait for the buffer lock
	QuiesceTimeout time.Duration    // Maximum wait for each lock during Quiesce
	Now            func() time.Time // Clock for the token bucket. Defaults to time.Now
	Metrics        *Metrics         // If nil, unregistered metrics are created

	// OnAnalysis, if not nil, receives the result of every successful upload.
	// It is called while the upload is still single-flight, so calls never overlap, and
	// they arrive in the order that the uploads were made.
	OnAnalysis func(analysis.Analysis)
}

func DefaultBufferOptions() BufferOptions {
	return BufferOptions{
		PerSecond:      DefaultPerSecond,
		Capacity:       DefaultCapacity,
		LockTimeout:    DefaultLockTimeout,
		QuiesceTimeout: DefaultQuiesceTimeout,
	}
}

type pendingFrame struct {
	seq   uint64 // Order of admission
	frame analysis.FrameRecord
}

// Buffer accumulates frames for upload to one remote session.
// Admission is rate-limited by a token bucket, the backlog is bounded (oldest frames are
// dropped first), and at most one upload is in flight at any time.
type Buffer struct {
	log       logs.Log
	patcher   Patcher
	sessionID string
	opts      BufferOptions
	metrics   *Metrics
	tokens    *TokenBucket

	// bufferLock guards pending and nextSeq. It is a semaphore so that we can bound our wait.
	bufferLock *semaphore.Weighted
	pending    []pendingFrame
	nextSeq    uint64

	// buildLock is held for the duration of an upload
	buildLock *semaphore.Weighted

	errLock   sync.Mutex
	lastErrAt time.Time
}

func NewBuffer(log logs.Log, patcher Patcher, sessionID string, opts BufferOptions) *Buffer {
	def := DefaultBufferOptions()
	if opts.PerSecond <= 0 {
		opts.PerSecond = def.PerSecond
	}
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = def.LockTimeout
	}
	if opts.QuiesceTimeout <= 0 {
		opts.QuiesceTimeout = def.QuiesceTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Buffer{
		log:        log,
		patcher:    patcher,
		sessionID:  sessionID,
		opts:       opts,
		metrics:    opts.Metrics,
		tokens:     NewTokenBucket(opts.PerSecond, opts.Now),
		bufferLock: semaphore.NewWeighted(1),
		buildLock:  semaphore.NewWeighted(1),
	}
}

func (b *Buffer) SessionID() string {
	return b.sessionID
}

// Admit buffers the frame if the token bucket allows it, and then attempts a flush
// if anything is pending. The returned bool is false if no upload was performed, or
// if the upload failed.
// If the buffer lock can't be acquired in time, the frame is dropped, but we still
// try to flush whatever is already pending.
func (b *Buffer) Admit(ctx context.Context, frame analysis.FrameRecord) (analysis.Analysis, bool) {
	if !b.lockBuffer(ctx) {
		b.log.Warnf("Session %v: Timed out waiting for upload buffer lock. Frame %v not buffered", b.sessionID, frame.FrameIndex)
		return b.flush(ctx, false)
	}
	if b.tokens.Take() {
		b.pending = append(b.pending, pendingFrame{seq: b.nextSeq, frame: frame})
		b.nextSeq++
		b.metrics.Admitted.Inc()
		b.metrics.Pending.Inc()
		if excess := len(b.pending) - b.opts.Capacity; excess > 0 {
			b.pending = append(b.pending[:0], b.pending[excess:]...)
			b.metrics.Evicted.Add(float64(excess))
			b.metrics.Pending.Sub(float64(excess))
		}
	} else {
		b.metrics.RateLimited.Inc()
	}
	isEmpty := len(b.pending) == 0
	b.bufferLock.Release(1)

	if isEmpty {
		return analysis.Analysis{}, false
	}
	return b.flush(ctx, false)
}

// ForceFlush uploads whatever is pending, even if that is nothing, so that we get the
// latest analysis from the server. Returns false if another flush is in progress, or
// if the upload failed.
func (b *Buffer) ForceFlush(ctx context.Context) (analysis.Analysis, bool) {
	return b.flush(ctx, true)
}

// Quiesce waits for any in-flight admission and flush to finish.
// Each wait is bounded by QuiesceTimeout, after which we give up and return false.
func (b *Buffer) Quiesce(ctx context.Context) bool {
	quiet := true
	for _, lock := range []*semaphore.Weighted{b.bufferLock, b.buildLock} {
		waitCtx, cancel := context.WithTimeout(ctx, b.opts.QuiesceTimeout)
		if err := lock.Acquire(waitCtx, 1); err == nil {
			lock.Release(1)
		} else {
			quiet = false
		}
		cancel()
	}
	if !quiet {
		b.log.Warnf("Session %v: Upload buffer did not become idle within %v", b.sessionID, b.opts.QuiesceTimeout)
	}
	return quiet
}

// Len returns the number of frames waiting to be uploaded
func (b *Buffer) Len() int {
	if !b.lockBuffer(context.Background()) {
		return 0
	}
	defer b.bufferLock.Release(1)
	return len(b.pending)
}

func (b *Buffer) lockBuffer(ctx context.Context) bool {
	waitCtx, cancel := context.WithTimeout(ctx, b.opts.LockTimeout)
	defer cancel()
	return b.bufferLock.Acquire(waitCtx, 1) == nil
}

func (b *Buffer) flush(ctx context.Context, force bool) (analysis.Analysis, bool) {
	if !b.buildLock.TryAcquire(1) {
		b.metrics.Flushes.WithLabelValues(FlushSkipped).Inc()
		return analysis.Analysis{}, false
	}
	defer b.buildLock.Release(1)

	if !b.lockBuffer(ctx) {
		b.metrics.Flushes.WithLabelValues(FlushSkipped).Inc()
		return analysis.Analysis{}, false
	}
	snapshot := make([]analysis.FrameRecord, len(b.pending))
	for i, p := range b.pending {
		snapshot[i] = p.frame
	}
	lastSeq := b.nextSeq // everything below this is in the snapshot
	b.bufferLock.Release(1)

	if len(snapshot) == 0 && !force {
		return analysis.Analysis{}, false
	}

	start := time.Now()
	result, err := b.patcher.PatchAnalysis(ctx, b.sessionID, snapshot)
	b.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		b.metrics.Flushes.WithLabelValues(FlushError).Inc()
		b.logError("Session %v: Upload of %v frames failed: %v", b.sessionID, len(snapshot), err)
		return analysis.Analysis{}, false
	}
	b.metrics.Flushes.WithLabelValues(FlushOK).Inc()

	// Remove what we uploaded. Frames may have been evicted during the upload, so we
	// can't simply cut len(snapshot) frames from the front.
	if b.lockBuffer(ctx) {
		n := 0
		for n < len(b.pending) && b.pending[n].seq < lastSeq {
			n++
		}
		b.pending = append(b.pending[:0], b.pending[n:]...)
		b.metrics.Pending.Sub(float64(n))
		b.bufferLock.Release(1)
	} else {
		b.log.Warnf("Session %v: Timed out waiting for upload buffer lock. Uploaded frames will be sent again", b.sessionID)
	}

	if b.opts.OnAnalysis != nil {
		b.opts.OnAnalysis(result)
	}
	return result, true
}

func (b *Buffer) logError(format string, args ...any) {
	b.errLock.Lock()
	defer b.errLock.Unlock()
	if time.Since(b.lastErrAt) > errorLogInterval {
		b.log.Errorf(format, args...)
		b.lastErrAt = time.Now()
	}
}
