// Package gateway is the client side of the quote pipeline: it turns HTTP
// calls into quote requests and keeps the quotes that come back on a Board.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/drblury/quoteflow/internal/quote"
	runtimepkg "github.com/drblury/quoteflow/internal/runtime"
	errspkg "github.com/drblury/quoteflow/internal/runtime/errors"
	jsoncodec "github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/quoteflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
)

const (
	// ConsumerName is the handler name of the quote board consumer.
	ConsumerName = "quote-board"
	// CorrelationHeader lets callers choose the correlation ID of a request.
	CorrelationHeader = "X-Correlation-ID"
)

// Gateway serves the quote HTTP API.
type Gateway struct {
	producer      runtimepkg.Producer
	requestsTopic string
	board         *Board
	logger        loggingpkg.ServiceLogger
	newID         func() string
	now           func() time.Time
}

// New returns a Gateway publishing requests to requestsTopic through producer.
func New(producer runtimepkg.Producer, requestsTopic string, board *Board, logger loggingpkg.ServiceLogger) *Gateway {
	if board == nil {
		board = NewBoard(DefaultBoardSize)
	}
	return &Gateway{
		producer:      producer,
		requestsTopic: requestsTopic,
		board:         board,
		logger:        logger,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Board returns the board quotes are recorded on.
func (g *Gateway) Board() *Board { return g.board }

// Register attaches the board consumer for quotesTopic to svc.
func (g *Gateway) Register(svc *runtimepkg.Service, quotesTopic string, codec quote.Codec) error {
	return runtimepkg.RegisterQuoteConsumer(svc, runtimepkg.ConsumerRegistration{
		Name:         ConsumerName,
		ConsumeQueue: quotesTopic,
		Codec:        codec,
		Sink:         g.Record,
	})
}

// Record is the QuoteSink that stores q on the board.
func (g *Gateway) Record(_ context.Context, q quote.Quote, md metadatapkg.Metadata) error {
	g.board.Add(Entry{
		ID:            q.ID,
		Price:         q.Price,
		CorrelationID: md.CorrelationID(),
		ReceivedAt:    g.now().UTC(),
	})
	g.logger.Info("Quote received", loggingpkg.LogFields{
		"quote_id":       q.ID,
		"price":          q.Price,
		"correlation_id": md.CorrelationID(),
	})
	return nil
}

// Router returns the HTTP API.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/quotes", func(r chi.Router) {
		r.Post("/request", g.RequestQuote)
		r.Get("/", g.ListQuotes)
		r.Get("/{id}", g.GetQuote)
	})

	return r
}

type requestQuoteResponse struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id"`
}

// RequestQuote publishes a new request identified by a fresh UUID.
func (g *Gateway) RequestQuote(w http.ResponseWriter, r *http.Request) {
	if g.producer == nil {
		g.writeError(w, errspkg.ErrPublisherRequired, http.StatusServiceUnavailable)
		return
	}

	id := g.newID()
	correlationID := r.Header.Get(CorrelationHeader)
	if correlationID == "" {
		correlationID = id
	}

	err := g.producer.PublishRequest(r.Context(), g.requestsTopic, id,
		metadatapkg.New(metadatapkg.KeyCorrelationID, correlationID))
	if err != nil {
		g.logger.Error("Failed to publish quote request", err, loggingpkg.LogFields{"request_id": id})
		g.writeError(w, err, http.StatusBadGateway)
		return
	}

	g.logger.Debug("Quote requested", loggingpkg.LogFields{"request_id": id, "correlation_id": correlationID})
	g.writeJSON(w, http.StatusAccepted, requestQuoteResponse{ID: id, CorrelationID: correlationID})
}

// ListQuotes returns the most recent quotes, newest first. ?limit=N caps the result.
func (g *Gateway) ListQuotes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	g.writeJSON(w, http.StatusOK, g.board.Recent(limit))
}

// GetQuote returns the quote for {id}. Request IDs containing "/" must be
// escaped as %2F.
func (g *Gateway) GetQuote(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when it is set, and the parameter is then still
	// escaped. IDs such as EUR/USD arrive that way.
	id := chi.URLParam(r, "id")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
	}
	entry, ok := g.board.Get(id)
	if !ok {
		http.Error(w, "quote not found", http.StatusNotFound)
		return
	}
	g.writeJSON(w, http.StatusOK, entry)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, v); err != nil {
		g.logger.Error("Failed to encode response", err, nil)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, err error, status int) {
	http.Error(w, err.Error(), status)
}
