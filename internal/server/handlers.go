package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mlvisuals/internal/model"
	"mlvisuals/internal/presenter"
	"mlvisuals/pkg/mlvisuals"
)

type runsQuery struct {
	Limit int `form:"limit"`
}

type learningCurveQuery struct {
	From         int    `form:"from"`
	To           int    `form:"to"`
	Step         int    `form:"step"`
	Runs         int    `form:"runs"`
	Feature      string `form:"feature"`
	Seed         int64  `form:"seed"`
	RandomTarget bool   `form:"random_target"`
}

type biasVarianceQuery struct {
	N          int   `form:"n"`
	Runs       int   `form:"runs"`
	Seed       int64 `form:"seed"`
	ShowSample bool  `form:"show_sample"`
}

type nonlinearQuery struct {
	N          int    `form:"n"`
	Runs       int    `form:"runs"`
	Seed       int64  `form:"seed"`
	Feature    string `form:"feature"`
	ShowSample bool   `form:"show_sample"`
}

func (s *Server) handleRuns(c *gin.Context) {
	var q runsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	runs, err := s.client.Runs(c.Request.Context(), mlvisuals.RunsRequest{Limit: q.Limit})
	if err != nil {
		s.logger.Error("list runs", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "QUERY_FAILED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRun(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	curve, ok, err := s.client.LearningCurveByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "QUERY_FAILED"})
		return
	}
	if ok {
		c.JSON(http.StatusOK, curve)
		return
	}
	batch, ok, err := s.client.BatchByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "QUERY_FAILED"})
		return
	}
	if ok {
		c.JSON(http.StatusOK, batch)
		return
	}
	archived, ok, err := s.client.RunFromArtifacts(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "QUERY_FAILED"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found: " + id, Code: "NOT_FOUND"})
		return
	}
	c.JSON(http.StatusOK, archived)
}

func (s *Server) handleLearningCurve(c *gin.Context) {
	var q learningCurveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	runID := mlvisuals.NewRunID(model.RunKindLearningCurve)
	s.stream(c, runID, func(ctx context.Context, p mlvisuals.Presenter) (bool, error) {
		summary, err := s.client.LearningCurve(ctx, mlvisuals.LearningCurveRequest{
			RunID:        runID,
			From:         q.From,
			To:           q.To,
			Step:         q.Step,
			Runs:         q.Runs,
			Feature:      q.Feature,
			Seed:         q.Seed,
			RandomTarget: q.RandomTarget,
		}, p)
		return summary.Complete, err
	})
}

func (s *Server) handleBiasVariance(c *gin.Context) {
	var q biasVarianceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	runID := mlvisuals.NewRunID(model.RunKindBiasVariance)
	s.stream(c, runID, func(ctx context.Context, p mlvisuals.Presenter) (bool, error) {
		summary, err := s.client.BiasVariance(ctx, mlvisuals.BiasVarianceRequest{
			RunID:      runID,
			N:          q.N,
			Runs:       q.Runs,
			Seed:       q.Seed,
			ShowSample: q.ShowSample,
		}, p)
		return summary.Complete, err
	})
}

func (s *Server) handleNonlinear(c *gin.Context) {
	var q nonlinearQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	runID := mlvisuals.NewRunID(model.RunKindNonlinear)
	s.stream(c, runID, func(ctx context.Context, p mlvisuals.Presenter) (bool, error) {
		summary, err := s.client.Nonlinear(ctx, mlvisuals.NonlinearRequest{
			RunID:      runID,
			N:          q.N,
			Runs:       q.Runs,
			Seed:       q.Seed,
			Feature:    q.Feature,
			ShowSample: q.ShowSample,
		}, p)
		return summary.Complete, err
	})
}

// stream upgrades the request and runs one batch against the socket. The
// batch context ends when the peer goes away, which cancels the batch at the
// next step boundary.
func (s *Server) stream(c *gin.Context, runID string, run func(context.Context, mlvisuals.Presenter) (bool, error)) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logger := s.logger.With("run_id", runID)
	logger.Info("websocket batch started", "path", c.FullPath())

	ws := presenter.NewWebSocket(conn, runID)
	complete, runErr := run(ctx, ws)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Warn("websocket batch ended with error", "error", runErr)
	}
	if ctx.Err() != nil {
		logger.Info("websocket peer left, batch cancelled")
		return
	}

	if err := ws.Send(context.Background(), presenter.DoneEvent(runID, complete, runErr)); err != nil {
		logger.Debug("send done event", "error", err)
		return
	}
	if err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second)); err != nil {
		logger.Debug("send close frame", "error", err)
	}
}
