package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"review-scraper/pkg/jobs"
	"review-scraper/pkg/models"
	"review-scraper/pkg/utils"
)

// SubmitRequest is the POST /api/jobs body
type SubmitRequest struct {
	FileURL string      `json:"file_url" binding:"required"`
	Mode    models.Mode `json:"mode"`
}

// Server exposes the job manager over HTTP
type Server struct {
	engine  *gin.Engine
	manager *jobs.Manager
	log     *logrus.Entry
}

func New(manager *jobs.Manager, log *logrus.Entry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, manager: manager, log: log}
	engine.Use(s.requestLog())

	engine.GET("/health", s.health)
	api := engine.Group("/api")
	{
		api.POST("/jobs", s.submitJob)
		api.GET("/jobs", s.listJobs)
		api.GET("/jobs/:id/status", s.jobStatus)
		api.POST("/jobs/:id/cancel", s.cancelJob)
	}
	return s
}

// Handler exposes the router; the caller owns the http.Server wrapped
// around it so shutdown stays in its hands
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) submitJob(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_url is required"})
		return
	}

	job, err := s.manager.Submit(req.FileURL, req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.manager.List()})
}

func (s *Server) jobStatus(c *gin.Context) {
	job, err := s.manager.Status(c.Param("id"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	job, err := s.manager.Cancel(c.Param("id"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) jobError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.log.Errorf("Job API error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
