// Package tracker turns a stream of camera frames into a stream of stabilized poses,
// and keeps a remote analysis session up to date with those poses.
//
// At most one inference runs at a time. If a frame arrives while the estimator is busy,
// Submit returns immediately with a copy of the previous pose, so the camera is never
// held up for longer than one inference.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/analysisclient"
	"github.com/cyclopcam/formtrack/pkg/perfstats"
	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/cyclopcam/formtrack/pkg/smooth"
	"github.com/cyclopcam/logs"
)

var (
	ErrSessionFinished  = errors.New("session is finished")
	ErrAlreadyRecording = errors.New("session is already recording")
	ErrNoRemote         = errors.New("session has no analysis service")
	ErrInference        = errors.New("inference failed")
	ErrResolution       = errors.New("frame does not match the session resolution")
)

// Don't log remote errors more often than this
const errorLogInterval = 15 * time.Second

// Remote is the analysis service. analysisclient.Client is the real implementation.
type Remote interface {
	analysisclient.Patcher
	CreateSession(ctx context.Context, params analysisclient.SessionParams) (string, error)
}

type Options struct {
	Domain           string
	Activity         string
	ResolutionWidth  int
	ResolutionHeight int
	Bounds           pose.Bounds // Coordinate space of the estimator's output
	Smoothing        smooth.Params
	DisableSmoothing bool // If true, Stabilized is the same as Raw
	BeginRecording   bool // Start uploading frames immediately
	Upload           analysisclient.BufferOptions
	Metrics          *Metrics         // If nil, unregistered metrics are created
	Now              func() time.Time // Defaults to time.Now
}

func DefaultOptions() Options {
	return Options{
		ResolutionWidth:  480,
		ResolutionHeight: 640,
		Bounds:           pose.NormalizedBounds,
		Smoothing:        smooth.DefaultParams(),
		BeginRecording:   true,
		Upload:           analysisclient.DefaultBufferOptions(),
	}
}

// Stats is a snapshot of a session's counters
type Stats struct {
	Submitted        int64
	Inferred         int64
	Repeats          int64
	InferenceErrors  int64
	AverageInference time.Duration // Moving average
	MeanInference    time.Duration // Since recording began, or since the session was created
	MaxInference     time.Duration // Over the same window as MeanInference
	PendingUploads   int
	RemoteSessionID  string
}

// Session tracks one person through one video
type Session struct {
	log       logs.Log
	estimator pose.Estimator
	remote    Remote // nil for tracking only
	opts      Options
	metrics   *Metrics

	frameCounter atomic.Int64 // Index of the most recently submitted frame
	finished     atomic.Bool

	// gate is held for the duration of an inference. These fields are only touched while holding it.
	gate      sync.Mutex
	filters   *smooth.Bank
	startTime time.Time

	// lock guards the fields below it
	lock         sync.Mutex
	arena        *frameArena
	recording    bool
	inferenceAcc perfstats.TimeAccumulator

	// remoteLock guards buffer and lastErrAt. It is held while the remote session is being created.
	remoteLock sync.Mutex
	buffer     *analysisclient.Buffer
	lastErrAt  time.Time

	latestAnalysis atomic.Pointer[analysis.Analysis]
	uploads        sync.WaitGroup

	nInferred       atomic.Int64
	nRepeats        atomic.Int64
	nInferenceError atomic.Int64
	inferenceTime   perfstats.MovingAverage
}

// NewSession creates a tracking session.
// If remote is nil, the session only tracks, and never uploads.
func NewSession(log logs.Log, estimator pose.Estimator, remote Remote, opts Options) (*Session, error) {
	if estimator == nil {
		return nil, fmt.Errorf("No pose estimator")
	}
	if opts.Bounds.Width <= 0 || opts.Bounds.Height <= 0 {
		opts.Bounds = pose.NormalizedBounds
	}
	if opts.Smoothing == (smooth.Params{}) {
		opts.Smoothing = smooth.DefaultParams()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		log:       log,
		estimator: estimator,
		remote:    remote,
		opts:      opts,
		metrics:   opts.Metrics,
		filters:   smooth.NewBank(opts.Smoothing),
		arena:     newFrameArena(),
		recording: opts.BeginRecording && remote != nil,
	}
	s.frameCounter.Store(-1)
	// Published from inside the buffer's flush, so results are stored in upload order
	onAnalysis := opts.Upload.OnAnalysis
	s.opts.Upload.OnAnalysis = func(a analysis.Analysis) {
		s.latestAnalysis.Store(&a)
		if onAnalysis != nil {
			onAnalysis(a)
		}
	}
	return s, nil
}

// Submit runs pose estimation on the image, or if an estimation is already running,
// returns a repeat of the previous inferred frame.
// An estimator failure returns an error that wraps ErrInference. The frame index
// is consumed, and the next Submit proceeds normally.
// A non-nil img must have the resolution the session was created with, otherwise
// ErrResolution is returned and the frame is ignored.
func (s *Session) Submit(ctx context.Context, img image.Image) (*FrameInference, error) {
	if s.finished.Load() {
		return nil, ErrSessionFinished
	}
	if img != nil {
		if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != s.opts.ResolutionWidth || h != s.opts.ResolutionHeight {
			return nil, fmt.Errorf("%w: got %v x %v, expected %v x %v", ErrResolution, w, h, s.opts.ResolutionWidth, s.opts.ResolutionHeight)
		}
	}
	index := s.frameCounter.Add(1)
	s.metrics.Submitted.Inc()

	if !s.gate.TryLock() {
		return s.repeatFrame(index), nil
	}
	defer s.gate.Unlock()
	if s.finished.Load() {
		return nil, ErrSessionFinished
	}
	return s.infer(ctx, index, img)
}

func (s *Session) repeatFrame(index int64) *FrameInference {
	s.metrics.Repeats.Inc()
	s.nRepeats.Add(1)
	f := &FrameInference{
		Index:         index,
		Analysis:      s.LatestAnalysis(),
		PreviousIndex: -1,
		Repeat:        true,
	}
	s.lock.Lock()
	prev := s.arena.latest()
	s.lock.Unlock()
	if prev != nil {
		f.Timestamp = prev.Timestamp
		f.Raw = prev.Raw
		f.Stabilized = prev.Stabilized
		f.PreviousIndex = prev.PreviousIndex
	}
	return f
}

// Must be called while holding the gate
func (s *Session) infer(ctx context.Context, index int64, img image.Image) (*FrameInference, error) {
	start := time.Now()

	s.lock.Lock()
	prev := s.arena.latest()
	s.lock.Unlock()

	var region *pose.Region
	if prev != nil {
		if r, ok := pose.PredictRegion(prev.Stabilized, s.opts.Bounds); ok {
			region = &r
		}
	}

	points, err := s.estimator.Estimate(img, region)
	if err == nil {
		var raw pose.Skeleton
		if raw, err = pose.NewSkeleton(points); err == nil {
			return s.commit(index, raw, prev, start), nil
		}
	}
	s.metrics.InferenceErrors.Inc()
	s.nInferenceError.Add(1)
	return nil, fmt.Errorf("%w: frame %v: %w", ErrInference, index, err)
}

func (s *Session) commit(index int64, raw pose.Skeleton, prev *FrameInference, start time.Time) *FrameInference {
	now := s.opts.Now()
	if s.startTime.IsZero() {
		s.startTime = now
	}
	timestamp := now.Sub(s.startTime).Seconds()

	stabilized := raw
	if !s.opts.DisableSmoothing {
		stabilized = s.filters.Stabilize(raw, timestamp)
	}

	f := &FrameInference{
		Index:         index,
		Timestamp:     timestamp,
		Raw:           raw,
		Stabilized:    stabilized,
		Analysis:      s.LatestAnalysis(),
		PreviousIndex: -1,
	}
	if prev != nil {
		f.PreviousIndex = prev.Index
	}

	elapsed := time.Since(start)

	s.lock.Lock()
	s.arena.add(f)
	s.inferenceAcc.AddSample(elapsed)
	recording := s.recording
	s.lock.Unlock()

	s.inferenceTime.Update(elapsed)
	s.metrics.InferenceDuration.Observe(elapsed.Seconds())
	s.nInferred.Add(1)

	if recording {
		s.upload(f)
	}
	return f
}

// upload sends the frame to the analysis service on a background goroutine.
// Must be called while holding the gate, so that Finish can wait for it.
func (s *Session) upload(f *FrameInference) {
	s.uploads.Add(1)
	go func() {
		defer s.uploads.Done()
		ctx := context.Background()
		buf := s.remoteBuffer(ctx)
		if buf == nil {
			return
		}
		buf.Admit(ctx, f.record())
	}()
}

// remoteBuffer returns the upload buffer, creating the remote session if necessary.
// Returns nil if the remote session could not be created. We'll try again on the next frame.
func (s *Session) remoteBuffer(ctx context.Context) *analysisclient.Buffer {
	s.remoteLock.Lock()
	defer s.remoteLock.Unlock()
	if s.buffer != nil {
		return s.buffer
	}
	id, err := s.remote.CreateSession(ctx, analysisclient.SessionParams{
		Domain:           s.opts.Domain,
		Activity:         s.opts.Activity,
		ResolutionWidth:  s.opts.ResolutionWidth,
		ResolutionHeight: s.opts.ResolutionHeight,
	})
	if err != nil {
		s.metrics.RemoteErrors.Inc()
		if time.Since(s.lastErrAt) > errorLogInterval {
			s.log.Errorf("Failed to create analysis session: %v", err)
			s.lastErrAt = time.Now()
		}
		return nil
	}
	s.buffer = analysisclient.NewBuffer(s.log, s.remote, id, s.opts.Upload)
	return s.buffer
}

func (s *Session) currentBuffer() *analysisclient.Buffer {
	s.remoteLock.Lock()
	defer s.remoteLock.Unlock()
	return s.buffer
}

// BeginRecording starts uploading frames to the analysis service.
func (s *Session) BeginRecording() error {
	if s.remote == nil {
		return ErrNoRemote
	}
	if s.finished.Load() {
		return ErrSessionFinished
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.recording {
		return ErrAlreadyRecording
	}
	s.recording = true
	s.inferenceAcc.Reset()
	s.log.Infof("Recording started at frame %v", s.frameCounter.Load()+1)
	return nil
}

// Finish waits for the in-flight inference and uploads to complete, performs a final upload,
// and returns the most recent analysis. The waits are bounded, so Finish can return before
// all uploads have completed, if the analysis service is unresponsive.
func (s *Session) Finish(ctx context.Context) (analysis.Analysis, error) {
	s.gate.Lock()
	if s.finished.Load() {
		s.gate.Unlock()
		return analysis.Analysis{}, ErrSessionFinished
	}
	s.finished.Store(true)
	s.gate.Unlock()

	quiesceTimeout := s.opts.Upload.QuiesceTimeout
	if quiesceTimeout <= 0 {
		quiesceTimeout = analysisclient.DefaultQuiesceTimeout
	}
	uploadsDone := make(chan struct{})
	go func() {
		s.uploads.Wait()
		close(uploadsDone)
	}()
	select {
	case <-uploadsDone:
	case <-time.After(quiesceTimeout):
		s.log.Warnf("Timed out waiting for uploads to finish")
	case <-ctx.Done():
	}

	if buf := s.currentBuffer(); buf != nil {
		buf.Quiesce(ctx)
		buf.ForceFlush(ctx)
	}
	a := s.LatestAnalysis()
	if a.HasMovement() {
		s.log.Infof("Session finished after %v frames. Movement '%v', %v reps", s.frameCounter.Load()+1, a.Movement, len(a.Reps))
	} else {
		s.log.Infof("Session finished after %v frames. No movement recognized", s.frameCounter.Load()+1)
	}
	return a, nil
}

// LatestAnalysis returns the most recent analysis from the server, or an empty analysis
func (s *Session) LatestAnalysis() analysis.Analysis {
	if a := s.latestAnalysis.Load(); a != nil {
		return *a
	}
	return analysis.Empty()
}

// Frame returns a recent inferred frame, such as the PreviousIndex of another frame.
// Only the most recent frames are retained.
func (s *Session) Frame(index int64) (*FrameInference, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	f := s.arena.get(index)
	return f, f != nil
}

func (s *Session) IsRecording() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.recording
}

func (s *Session) Stats() Stats {
	st := Stats{
		Submitted:        s.frameCounter.Load() + 1,
		Inferred:         s.nInferred.Load(),
		Repeats:          s.nRepeats.Load(),
		InferenceErrors:  s.nInferenceError.Load(),
		AverageInference: s.inferenceTime.Get(),
	}
	s.lock.Lock()
	st.MeanInference = s.inferenceAcc.Average()
	st.MaxInference = s.inferenceAcc.Max
	s.lock.Unlock()
	if buf := s.currentBuffer(); buf != nil {
		st.PendingUploads = buf.Len()
		st.RemoteSessionID = buf.SessionID()
	}
	return st
}
