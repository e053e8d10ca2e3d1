package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/samuelfneumann/goplace/checkpoint"
	"github.com/samuelfneumann/goplace/trainer"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ListResponse lists the saved models, newest first
type ListResponse struct {
	Checkpoints []checkpoint.Record `json:"checkpoints"`
}

// BestResponse names the best saved model for a metric
type BestResponse struct {
	Name     string            `json:"name"`
	Metric   string            `json:"metric"`
	Value    float64           `json:"value"`
	Maximize bool              `json:"maximize"`
	Record   checkpoint.Record `json:"record"`
}

// DeleteResponse reports a deleted model
type DeleteResponse struct {
	Success bool   `json:"success"`
	Name    string `json:"name"`
}

// status returns the HTTP status of a service error
func status(err error) int {
	switch {
	case trainer.IsClientError(err),
		errors.Is(err, checkpoint.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, trainer.ErrModelNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := status(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	} else {
		s.logger.Warn("bad request", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Warn("invalid request body", "path", c.FullPath(),
		"error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "invalid request body: " + err.Error(),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
}

// train handles POST /api/rl/train/:algorithm
func (s *Server) train(c *gin.Context) {
	req := s.defaults
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	req.Algorithm = c.Param("algorithm")

	result, err := s.trainer.Train(c.Request.Context(), req, nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// trainGNN handles POST /api/ml/train/gnn
func (s *Server) trainGNN(c *gin.Context) {
	req := trainer.DefaultGNNRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	result, err := s.trainer.TrainGNN(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// infer handles POST /api/rl/inference
func (s *Server) infer(c *gin.Context) {
	var req trainer.InferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	result, err := s.trainer.Infer(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// listModels handles GET /api/models/list
func (s *Server) listModels(c *gin.Context) {
	records, err := s.trainer.Manager().List()
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []checkpoint.Record{}
	}
	c.JSON(http.StatusOK, ListResponse{Checkpoints: records})
}

// bestModel handles GET /api/models/best?metric=reward&maximize=true
func (s *Server) bestModel(c *gin.Context) {
	metric := c.DefaultQuery("metric", "reward")
	maximize, err := strconv.ParseBool(c.DefaultQuery("maximize", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "maximize must be a boolean",
		})
		return
	}

	rec, ok, err := s.trainer.Manager().Best(metric, maximize)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no model has metric " + strconv.Quote(metric),
		})
		return
	}
	value, _ := rec.Metric(metric)
	c.JSON(http.StatusOK, BestResponse{
		Name:     rec.Name,
		Metric:   metric,
		Value:    value,
		Maximize: maximize,
		Record:   rec,
	})
}

// deleteModel handles DELETE /api/models/:name
func (s *Server) deleteModel(c *gin.Context) {
	name := c.Param("name")
	deleted, err := s.trainer.Manager().Delete(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "model " + strconv.Quote(name) + " not found",
		})
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{Success: true, Name: name})
}
