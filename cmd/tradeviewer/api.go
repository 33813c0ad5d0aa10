package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/liveview/component"
	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/observability"
	"github.com/kbukum/liveview/paging"
	"github.com/kbukum/liveview/server"
	"github.com/kbukum/liveview/server/middleware"
	"github.com/kbukum/liveview/sse"
	"github.com/kbukum/liveview/trades"
	"github.com/kbukum/liveview/validation"
	"github.com/kbukum/liveview/version"
)

type searchRequest struct {
	Text string `json:"text" validate:"max=200"`
}

type sortRequest struct {
	Name string `json:"name" validate:"required"`
}

type pauseRequest struct {
	Paused    *bool `json:"paused"`
	AutoPause *bool `json:"auto_pause"`
}

// api serves the viewer over HTTP.
type api struct {
	viewer     *Viewer
	hub        *sse.Hub
	components *component.Registry
	service    string
	version    string
}

func (a *api) routes(s *server.Server) {
	r := s.Engine()
	r.GET("/healthz", a.health)
	r.GET("/version", a.versionInfo)

	r.GET("/trades", a.window)
	r.GET("/trades/events", s.StreamLimiter(), a.events)
	r.GET("/sorts", a.sorts)
	r.GET("/state", a.state)

	control := r.Group("/", s.ControlLimiter())
	control.PUT("/search", a.search)
	control.PUT("/sort", a.sort)
	control.PUT("/page", a.page)
	control.PUT("/pause", a.pause)
}

// bind decodes the JSON body into dst and validates it.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return false
	}
	if err := validation.Validate(dst); err != nil {
		server.RespondWithError(c, err)
		return false
	}
	return true
}

func (a *api) window(c *gin.Context) {
	snap := a.viewer.Snapshot()
	resp := snap.Response
	c.Header("X-Window-Seq", strconv.FormatUint(snap.Seq, 10))
	server.RespondOKWithMeta(c, snap.Rows, &server.Meta{
		Page:     resp.Page,
		PageSize: resp.PageSize,
		Total:    resp.TotalSize,
		Pages:    resp.Pages,
		Clamped:  resp.Clamped,
		Paused:   a.viewer.View().Paused(),
	})
}

// events streams bound batches. A reconnecting client may pass its previous
// ?client id to replace the stale stream instead of leaving it to time out.
func (a *api) events(c *gin.Context) {
	client := c.Query("client")
	if err := validation.New().UUID("client", client).Err(); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if client == "" {
		client = middleware.GetRequestID(c)
	}
	id := a.viewer.cfg.Viewer.StreamPrefix + ":" + client
	sse.Serve(a.hub, c.Writer, c.Request, sse.Stream{
		ClientID: id,
		Snapshot: a.viewer.StreamEvents,
	})
}

func (a *api) sorts(c *gin.Context) {
	server.RespondOK(c, trades.SortNames())
}

func (a *api) state(c *gin.Context) {
	server.RespondOK(c, a.viewer.State())
}

func (a *api) search(c *gin.Context) {
	var req searchRequest
	if !bind(c, &req) {
		return
	}
	a.viewer.Search(req.Text)
	server.RespondAccepted(c, a.viewer.State())
}

func (a *api) sort(c *gin.Context) {
	var req sortRequest
	if !bind(c, &req) {
		return
	}
	if err := a.viewer.SetSort(req.Name); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, a.viewer.State())
}

func (a *api) page(c *gin.Context) {
	var req paging.Request
	if !bind(c, &req) {
		return
	}
	if err := a.viewer.RequestPage(req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondAccepted(c, a.viewer.State())
}

func (a *api) pause(c *gin.Context) {
	var req pauseRequest
	if !bind(c, &req) {
		return
	}
	if err := validation.New().
		Check(req.Paused != nil || req.AutoPause != nil, "body", "set paused or auto_pause").
		Err(); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if req.AutoPause != nil {
		if err := a.viewer.SetAutoPause(*req.AutoPause); err != nil {
			server.RespondWithError(c, err)
			return
		}
	}
	if req.Paused != nil {
		if err := a.viewer.SetPaused(*req.Paused); err != nil {
			server.RespondWithError(c, err)
			return
		}
	}
	server.RespondAccepted(c, a.viewer.State())
}

func (a *api) health(c *gin.Context) {
	sh := observability.NewServiceHealth(a.service, a.version)
	for _, h := range a.components.HealthAll(c.Request.Context()) {
		sh.AddComponent(h)
	}
	status := http.StatusOK
	if sh.Status == component.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, sh)
}

func (a *api) versionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
