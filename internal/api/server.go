// Package api is the operator HTTP surface: health, read-only views of the
// active event, and an inbound-message webhook.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"party-doorman/internal/handler"
	"party-doorman/internal/models"
	"party-doorman/internal/outbox"
	"party-doorman/internal/storage"
)

// Summarizer renders the social graph for display.
type Summarizer interface {
	Summary(ctx context.Context, eventID int64) (string, error)
}

type Config struct {
	Addr  string
	Token string
	Debug bool
}

type Server struct {
	store  *storage.Store
	disp   *handler.Dispatcher
	out    *outbox.Outbox
	social Summarizer
	cfg    Config
	log    zerolog.Logger
	router *gin.Engine
}

type messageRequest struct {
	From  string `json:"from" binding:"required"`
	Text  string `json:"text"`
	VCard string `json:"vcard"`
}

type messageResponse struct {
	Reply string `json:"reply"`
}

type graphResponse struct {
	Summary     string              `json:"summary,omitempty"`
	Stats       *models.SocialStats `json:"stats"`
	Connections []models.Connection `json:"connections"`
}

// New creates the HTTP surface. social may be nil.
func New(store *storage.Store, disp *handler.Dispatcher, out *outbox.Outbox, social Summarizer, cfg Config, log zerolog.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		store:  store,
		disp:   disp,
		out:    out,
		social: social,
		cfg:    cfg,
		log:    log.With().Str("component", "API").Logger(),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestID(s.log), accessLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", bearerAuth(s.cfg.Token))
	{
		api.GET("/event", s.getEvent)
		api.GET("/guests", s.listGuests)
		api.GET("/stats", s.getStats)
		api.GET("/graph", s.getGraph)
		api.POST("/messages", s.postMessage)
	}
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// activeEvent writes the error response itself and returns nil when there
// is no event to serve.
func (s *Server) activeEvent(c *gin.Context) *models.Event {
	ev, err := s.store.ActiveEvent(c.Request.Context())
	if errors.Is(err, storage.ErrNoActiveEvent) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active event"})
		return nil
	}
	if err != nil {
		s.fail(c, err)
		return nil
	}
	return ev
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Server) getEvent(c *gin.Context) {
	if ev := s.activeEvent(c); ev != nil {
		c.JSON(http.StatusOK, ev)
	}
}

func (s *Server) listGuests(c *gin.Context) {
	ev := s.activeEvent(c)
	if ev == nil {
		return
	}
	ctx := c.Request.Context()

	var (
		guests []models.Guest
		err    error
	)
	if q := c.Query("q"); q != "" {
		guests, err = s.store.SearchGuests(ctx, ev.ID, q)
	} else {
		status := models.GuestStatus(c.Query("status"))
		if status != "" && !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
			return
		}
		guests, err = s.store.ListGuests(ctx, ev.ID, status)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	if guests == nil {
		guests = []models.Guest{}
	}
	c.JSON(http.StatusOK, gin.H{"guests": guests})
}

func (s *Server) getStats(c *gin.Context) {
	ev := s.activeEvent(c)
	if ev == nil {
		return
	}
	stats, err := s.store.EventStats(c.Request.Context(), ev.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getGraph(c *gin.Context) {
	ev := s.activeEvent(c)
	if ev == nil {
		return
	}
	ctx := c.Request.Context()

	conns, err := s.store.SocialGraph(ctx, ev.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	stats, err := s.store.SocialStats(ctx, ev.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := graphResponse{Stats: stats, Connections: conns}
	if resp.Connections == nil {
		resp.Connections = []models.Connection{}
	}
	if s.social != nil {
		if resp.Summary, err = s.social.Summary(ctx, ev.ID); err != nil {
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// postMessage routes one message as if it had arrived over the transport.
// The reply is returned rather than sent.
func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	r := s.disp.Handle(ctx, handler.Inbound{From: req.From, Text: req.Text, VCard: req.VCard})
	if r.Text != "" {
		s.out.LogReply(ctx, r.EventID, r.To, r.Text)
	}
	c.JSON(http.StatusOK, messageResponse{Reply: r.Text})
}
