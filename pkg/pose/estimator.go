package pose

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"
)

// Estimator runs a pose estimation neural network on an image, and returns NumLandmarks points
// in canonical order. Landmarks that were not found still occupy their slot, with a score near zero.
// If region is not nil, the estimator should only look inside that part of the image.
// Each inference backend (NCNN, ONNX, Hailo, etc) has its own implementation of this interface.
type Estimator interface {
	Estimate(img image.Image, region *Region) ([]Point, error)

	// Close releases the resources of the backend
	Close()
}

// ReplayEstimator plays back keypoints that were recorded from a real estimator.
// The file format is JSON lines, where each line is an array of NumLandmarks {x,y,score} objects.
// The image passed to Estimate is ignored.
type ReplayEstimator struct {
	Latency time.Duration // Simulated inference time
	Loop    bool          // Start again from the first frame when we reach the end

	lock   sync.Mutex
	frames [][]Point
	next   int
}

// Returned by ReplayEstimator when all recorded frames have been consumed
var ErrReplayFinished = errors.New("replay finished")

// Load a replay file from disk
func LoadReplayEstimator(filename string) (*ReplayEstimator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := ReadReplay(f)
	if err != nil {
		return nil, fmt.Errorf("Error reading replay file %v: %w", filename, err)
	}
	return r, nil
}

// ReadReplay parses JSON lines from r
func ReadReplay(r io.Reader) (*ReplayEstimator, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	frames := [][]Point{}
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		points := []Point{}
		if err := json.Unmarshal(raw, &points); err != nil {
			return nil, fmt.Errorf("line %v: %w", line, err)
		}
		if len(points) != NumLandmarks {
			return nil, fmt.Errorf("line %v: %w: expected %v, got %v", line, ErrLandmarkCount, NumLandmarks, len(points))
		}
		frames = append(frames, points)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewReplayEstimator(frames), nil
}

func NewReplayEstimator(frames [][]Point) *ReplayEstimator {
	return &ReplayEstimator{
		frames: frames,
	}
}

// Number of recorded frames
func (r *ReplayEstimator) Len() int {
	return len(r.frames)
}

func (r *ReplayEstimator) Estimate(img image.Image, region *Region) ([]Point, error) {
	if r.Latency != 0 {
		time.Sleep(r.Latency)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.next >= len(r.frames) {
		if !r.Loop || len(r.frames) == 0 {
			return nil, ErrReplayFinished
		}
		r.next = 0
	}
	out := make([]Point, NumLandmarks)
	copy(out, r.frames[r.next])
	r.next++
	return out, nil
}

func (r *ReplayEstimator) Close() {
}
