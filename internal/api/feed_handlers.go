package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/onnwee/nearby/internal/event"
	"github.com/onnwee/nearby/internal/feed"
	"github.com/onnwee/nearby/internal/middleware"
)

// FeedHandlers upgrades clients to live feed sessions.
type FeedHandlers struct {
	base     context.Context
	session  feed.Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// FeedHandlersConfig configures FeedHandlers.
type FeedHandlersConfig struct {
	// Base is cancelled on shutdown and ends every open session.
	Base context.Context
	// Session is the template for each session; Filter and Platform are
	// filled in from the request.
	Session feed.Config
	// AllowedOrigins restricts the Origin header of upgrade requests. Empty
	// allows any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewFeedHandlers creates feed handlers.
func NewFeedHandlers(cfg FeedHandlersConfig) *FeedHandlers {
	base := cfg.Base
	if base == nil {
		base = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}
	return &FeedHandlers{
		base:    base,
		session: cfg.Session,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Feed handles GET /events/feed?platform=&partner_id= and serves one
// feed session over a websocket until either side closes it.
func (h *FeedHandlers) Feed(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		WriteError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Websocket upgrade required")
		return
	}

	query := r.URL.Query()
	cfg := h.session
	cfg.Filter = event.Filter{PartnerID: strings.TrimSpace(query.Get("partner_id"))}
	cfg.Platform = strings.TrimSpace(query.Get("platform"))
	if cfg.Logger == nil {
		cfg.Logger = h.logger
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	session := feed.NewSession(conn, cfg)
	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.WarnContext(ctx, "feed session ended with error",
			"session_id", session.ID(),
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
}
