package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/meetflow/internal/aggregation"
	"github.com/mohammad-safakhou/meetflow/internal/ingest"
	"github.com/mohammad-safakhou/meetflow/internal/logging"
)

type AggregationsHandler struct {
	registry *aggregation.Registry
	svc      *ingest.Service
	logger   logging.Logger
}

func (h *AggregationsHandler) Register(api *echo.Group) {
	api.POST("/domains/:domain/aggregations", h.launch)
	api.GET("/aggregations/:run_id", h.get)
	api.DELETE("/aggregations/:run_id", h.cancel)
}

type jobResponse struct {
	aggregation.Job
	Insights int `json:"insights,omitempty"`
}

func (h *AggregationsHandler) launch(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	job := h.registry.Launch(c.Request().Context(), domain)
	if job.State != aggregation.StatePolling {
		return c.JSON(http.StatusBadGateway, jobResponse{Job: job})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"run_id": job.RunID, "state": job.State})
}

// get returns the job; terminal jobs are consumed and a completed job's insights are
// merged into its domain.
func (h *AggregationsHandler) get(c echo.Context) error {
	job, err := h.registry.Consume(c.Param("run_id"))
	if errors.Is(err, aggregation.ErrUnknownRun) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown run")
	}
	if err != nil {
		return err
	}
	resp := jobResponse{Job: job}
	if job.State == aggregation.StateComplete && h.svc != nil {
		records := aggregation.InsightRecords(job, h.svc.Pipeline())
		if len(records) > 0 {
			if _, err := h.svc.IngestRecords(c.Request().Context(), job.Domain, records); err != nil {
				h.logger.Error("insight merge failed", "run_id", job.RunID, "err", err)
			} else {
				resp.Insights = len(records)
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AggregationsHandler) cancel(c echo.Context) error {
	job, err := h.registry.Cancel(c.Param("run_id"))
	if errors.Is(err, aggregation.ErrUnknownRun) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown run")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, jobResponse{Job: job})
}
