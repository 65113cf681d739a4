package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/meetflow/internal/ingest"
	"github.com/mohammad-safakhou/meetflow/internal/logging"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
)

const maxBodyBytes = 10 << 20

type MeetingsHandler struct {
	svc    *ingest.Service
	logger logging.Logger
}

func (h *MeetingsHandler) Register(g *echo.Group) {
	g.POST("/:domain/meetings", h.ingest)
	g.POST("/:domain/transcripts", h.transcript)
	g.GET("/:domain/meetings", h.list)
	g.GET("/:domain/meetings/grouped", h.grouped)
	g.GET("/:domain/meetings/search", h.search)
	g.POST("/:domain/sync", h.sync)
}

type meetingsResponse struct {
	Domain   string            `json:"domain"`
	Count    int               `json:"count"`
	Meetings []meeting.Meeting `json:"meetings"`
}

func domainParam(c echo.Context) (string, error) {
	d := strings.ToLower(strings.TrimSpace(c.Param("domain")))
	if d == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "domain required")
	}
	return d, nil
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	return body, nil
}

func (h *MeetingsHandler) ingest(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	source := c.QueryParam("source")
	if source == "" {
		source = "webhook"
	}
	res, err := h.svc.Ingest(c.Request().Context(), domain, body, source)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *MeetingsHandler) transcript(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(body)) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "transcript text required")
	}
	source := c.QueryParam("source")
	if source == "" {
		source = "manual"
	}
	res, err := h.svc.IngestTranscript(c.Request().Context(), domain, string(body), source)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *MeetingsHandler) list(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	ms, err := h.svc.List(c.Request().Context(), domain, c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meetingsResponse{Domain: domain, Count: len(ms), Meetings: ms})
}

func (h *MeetingsHandler) grouped(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	groups, err := h.svc.Grouped(c.Request().Context(), domain)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"domain": domain, "groups": groups})
}

func (h *MeetingsHandler) search(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	hits, err := h.svc.Search(c.Request().Context(), domain, q, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"domain": domain, "query": q, "hits": hits})
}

func (h *MeetingsHandler) sync(c echo.Context) error {
	domain, err := domainParam(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Sync(c.Request().Context(), domain)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
