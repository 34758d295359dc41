// Package statusapi runs a small gin HTTP server exposing the pipeline's
// lifecycle state, queue depths and drop counters, plus host CPU/memory
// load, so an external GUI shell can poll connection health without the
// orchestrator ever blocking on it. Mirrors the REST surface pattern of
// this driver's original API server.
package statusapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	psutilcpu "github.com/shirou/gopsutil/v3/cpu"
	psutilmem "github.com/shirou/gopsutil/v3/mem"

	"github.com/wolfkrypt/mirror/internal/pipeline"
)

// Source is the subset of *pipeline.Pipeline the status surface polls.
type Source interface {
	State() pipeline.State
	IsRunning() bool
	Stats() pipeline.Stats
}

// Server is a local, non-blocking HTTP status and metrics endpoint.
type Server struct {
	addr   string
	source Source
	http   *http.Server
}

// New builds a status server bound to addr (e.g. "127.0.0.1:7770") that
// reports on source. Start has not been called yet.
func New(addr string, source Source) *Server {
	return &Server{addr: addr, source: source}
}

// healthResponse is the /healthz payload.
type healthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

// metricsResponse is the /metrics payload.
type metricsResponse struct {
	State           string  `json:"state"`
	VideoQueueLen   int     `json:"video_queue_len"`
	AudioQueueLen   int     `json:"audio_queue_len"`
	FrameQueueLen   int     `json:"frame_queue_len"`
	VideoDrops      uint64  `json:"video_drops"`
	AudioDrops      uint64  `json:"audio_drops"`
	Resyncs         uint64  `json:"resyncs"`
	DecoderFailures uint64  `json:"decoder_failures"`
	HostCPUPercent  float64 `json:"host_cpu_percent"`
	HostMemPercent  float64 `json:"host_mem_percent"`
}

// Start launches the HTTP server in a background goroutine. It returns
// immediately; call Stop to shut it down gracefully.
func (s *Server) Start() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", s.handleMetrics)

	s.http = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	go func() {
		log.Printf("statusapi: listening on %s", s.addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("statusapi: server error: %v", err)
		}
	}()
}

// Stop shuts the server down within a bounded grace period. Safe to call
// on a server that was never started.
func (s *Server) Stop() {
	if s.http == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		log.Printf("statusapi: shutdown error: %v", err)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if !s.source.IsRunning() {
		status = "idle"
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:    status,
		State:     s.source.State().String(),
		Connected: s.source.IsRunning(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	stats := s.source.Stats()

	cpuPercent := 0.0
	if pcts, err := psutilcpu.Percent(0, false); err == nil && len(pcts) > 0 {
		cpuPercent = pcts[0]
	}
	memPercent := 0.0
	if vm, err := psutilmem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}

	c.JSON(http.StatusOK, metricsResponse{
		State:           stats.State.String(),
		VideoQueueLen:   stats.VideoQueueLen,
		AudioQueueLen:   stats.AudioQueueLen,
		FrameQueueLen:   stats.FrameQueueLen,
		VideoDrops:      stats.VideoDrops,
		AudioDrops:      stats.AudioDrops,
		Resyncs:         stats.Resyncs,
		DecoderFailures: stats.DecoderFailures,
		HostCPUPercent:  cpuPercent,
		HostMemPercent:  memPercent,
	})
}

// Addr reports the configured bind address as an http:// base URL. With a
// configured port of 0 it reports ":0", not the port actually bound.
func (s *Server) Addr() string {
	return fmt.Sprintf("http://%s", s.addr)
}
