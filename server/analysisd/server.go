// Package analysisd is a reference implementation of the remote analysis service.
// It stores uploaded frames in sqlite, and re-analyzes the whole video after every upload.
// It exists so that the tracking pipeline can be developed and tested without the real service.
package analysisd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/analysisclient"
	"github.com/cyclopcam/formtrack/pkg/dbh"
	"github.com/cyclopcam/formtrack/pkg/www"
	"github.com/cyclopcam/logs"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Maximum size of an upload. 1000 frames is about 1MB.
const maxUploadBytes = 32 * 1024 * 1024

type Server struct {
	Log        logs.Log
	db         *gorm.DB
	apiKeys    map[string]bool
	handler    http.Handler
	httpServer *http.Server

	registry       *prometheus.Registry
	videosCreated  prometheus.Counter
	framesReceived prometheus.Counter
}

// NewServer opens (or creates) the database, and sets up the HTTP routes.
// If apiKeys is empty, requests are not authenticated.
// uploadsPerMinute limits the number of uploads from a single IP. Zero means no limit.
func NewServer(log logs.Log, dbFilename string, apiKeys []string, uploadsPerMinute int) (*Server, error) {
	db, err := openDB(log, dbFilename)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Log:      log,
		db:       db,
		apiKeys:  map[string]bool{},
		registry: prometheus.NewRegistry(),
		videosCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysisd_videos_created_total",
			Help: "Videos created",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysisd_frames_received_total",
			Help: "Frames uploaded",
		}),
	}
	for _, k := range apiKeys {
		s.apiKeys[k] = true
	}
	s.registry.MustRegister(s.videosCreated, s.framesReceived)

	router := httprouter.New()
	www.Handle(log, router, "POST", "/videos", s.httpCreateVideo)
	www.Handle(log, router, "GET", "/videos/:id", s.httpGetVideo)
	www.Handle(log, router, "GET", "/videos/:id/analysis", s.httpGetAnalysis)
	patch := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		www.RunProtected(log, w, r, func() {
			s.httpPatchFrames(w, r, httprouter.ParamsFromContext(r.Context()))
		})
	})
	router.Handler("PATCH", "/videos/:id/j2p", www.RateLimitByIP(uploadsPerMinute, time.Minute, patch))
	router.Handler("GET", "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.handler = router
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe blocks until the server is closed.
// addr example: ":8090"
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Log.Infof("Listening on %v", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the HTTP server (if it was started), and closes the database
func (s *Server) Close() error {
	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.httpServer.Shutdown(ctx)
		cancel()
	}
	if sqlDB, dbErr := s.db.DB(); dbErr == nil {
		sqlDB.Close()
	}
	return err
}

func (s *Server) checkAPIKey(r *http.Request) {
	if len(s.apiKeys) != 0 && !s.apiKeys[r.Header.Get(analysisclient.APIKeyHeader)] {
		www.PanicUnauthorized()
	}
}

func (s *Server) getVideoOrPanic(id string) *Video {
	video := Video{}
	if err := s.db.First(&video, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			www.PanicNotFound()
		}
		www.Check(err)
	}
	return &video
}

func (s *Server) httpCreateVideo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.checkAPIKey(r)
	params := analysisclient.SessionParams{}
	www.ReadJSON(w, r, &params, 64*1024)
	if params.ResolutionWidth <= 0 || params.ResolutionHeight <= 0 {
		www.PanicBadRequestf("Invalid resolution %v x %v", params.ResolutionWidth, params.ResolutionHeight)
	}
	video := Video{
		ID:               uuid.NewString(),
		Domain:           params.Domain,
		Activity:         params.Activity,
		Inference:        params.Inference,
		ResolutionWidth:  params.ResolutionWidth,
		ResolutionHeight: params.ResolutionHeight,
		Created:          dbh.MakeIntTime(time.Now()),
	}
	www.Check(s.db.Create(&video).Error)
	s.videosCreated.Inc()
	s.Log.Infof("Created video %v (%v/%v, %v x %v)", video.ID, video.Domain, video.Activity, video.ResolutionWidth, video.ResolutionHeight)
	www.SendJSON(w, map[string]string{"id": video.ID})
}

func (s *Server) httpGetVideo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	s.checkAPIKey(r)
	www.SendJSON(w, s.getVideoOrPanic(p.ByName("id")))
}

func (s *Server) httpPatchFrames(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	s.checkAPIKey(r)
	video := s.getVideoOrPanic(p.ByName("id"))
	frames := []analysis.FrameRecord{}
	www.ReadJSON(w, r, &frames, maxUploadBytes)
	www.Check(saveFrames(s.db, video.ID, frames))
	s.framesReceived.Add(float64(len(frames)))
	www.SendJSON(w, s.analyze(video))
}

func (s *Server) httpGetAnalysis(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	s.checkAPIKey(r)
	www.SendJSON(w, s.analyze(s.getVideoOrPanic(p.ByName("id"))))
}

func (s *Server) analyze(video *Video) analysis.Analysis {
	frames, err := loadFrames(s.db, video.ID)
	www.Check(err)
	a := analysis.Empty()
	a.Reps = analyzeReps(frames)
	// The movement is only known once we have seen it
	if len(a.Reps) != 0 {
		a.Movement = video.Activity
	}
	return a
}
