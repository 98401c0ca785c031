// Package api exposes a read-only HTTP monitor over the engine: book depth,
// positions, PnL, and a websocket fill stream. It never mutates the book or
// ledger.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"mmcore/internal/book"
	"mmcore/internal/engine"
	"mmcore/internal/ledger"
)

type Server struct {
	engine      *engine.Engine
	hub         *Hub
	rateLimiter *RateLimiter
	log         *logrus.Entry
	upgrader    websocket.Upgrader
	corsOrigins []string // empty = allow all
}

// NewServer creates a monitor server over the engine.
func NewServer(e *engine.Engine, log *logrus.Logger) *Server {
	s := &Server{
		engine:      e,
		hub:         NewHub(),
		rateLimiter: NewRateLimiter(600, 1*time.Minute),
		log:         log.WithField("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// SetCORSOrigins restricts CORS to the given origins. An empty slice allows
// all origins.
func (s *Server) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.corsOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.rateLimiter.Middleware)

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/symbols", s.getSymbols)
		r.Get("/book/{symbol}", s.getBook)
		r.Get("/positions", s.getPositions)
		r.Get("/positions/{symbol}", s.getPosition)
		r.Get("/pnl", s.getPnL)
		r.Get("/trades", s.getTrades)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) getSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Books().ActiveSymbols())
}

// BookSnapshot is the depth view served for one symbol.
type BookSnapshot struct {
	Symbol book.SymbolID    `json:"symbol"`
	Bids   []book.LevelView `json:"bids"`
	Asks   []book.LevelView `json:"asks"`
	Stats  book.Stats       `json:"stats"`
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	symbol, ok := parseSymbol(w, r)
	if !ok {
		return
	}
	b, ok := s.engine.Books().Lookup(symbol)
	if !ok {
		http.Error(w, "unknown symbol", http.StatusNotFound)
		return
	}

	depth := 0
	if q := r.URL.Query().Get("depth"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			depth = n
		}
	}

	writeJSON(w, BookSnapshot{
		Symbol: symbol,
		Bids:   b.Bids(depth),
		Asks:   b.Asks(depth),
		Stats:  b.GetStats(),
	})
}

func (s *Server) getPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Ledger().AllPositions())
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	symbol, ok := parseSymbol(w, r)
	if !ok {
		return
	}
	pos, ok := s.engine.Ledger().GetPosition(symbol)
	if !ok {
		http.Error(w, "no position", http.StatusNotFound)
		return
	}
	writeJSON(w, pos)
}

func (s *Server) getPnL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Ledger().GetStats())
}

func (s *Server) getTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	var trades []ledger.Trade
	if q := r.URL.Query().Get("symbol"); q != "" {
		n, err := strconv.ParseUint(q, 10, 16)
		if err != nil {
			http.Error(w, "bad symbol", http.StatusBadRequest)
			return
		}
		trades = s.engine.Ledger().TradeHistory(book.SymbolID(n))
	} else {
		trades = s.engine.Ledger().AllTrades()
	}

	// Newest last; serve the tail.
	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	writeJSON(w, trades)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// BroadcastFill pushes a recorded fill to all websocket clients. Wire it to
// the engine's fill observer hook.
func (s *Server) BroadcastFill(tr ledger.Trade) {
	s.hub.Broadcast(Event{Type: "fill", Data: tr})
}

// BroadcastBook pushes a depth snapshot for one symbol.
func (s *Server) BroadcastBook(symbol book.SymbolID) {
	b, ok := s.engine.Books().Lookup(symbol)
	if !ok {
		return
	}
	s.hub.Broadcast(Event{Type: "book", Data: BookSnapshot{
		Symbol: symbol,
		Bids:   b.Bids(0),
		Asks:   b.Asks(0),
		Stats:  b.GetStats(),
	}})
}

// Shutdown stops the rate limiter and disconnects websocket clients.
func (s *Server) Shutdown() {
	s.rateLimiter.Stop()
	s.hub.Stop()
}

func parseSymbol(w http.ResponseWriter, r *http.Request) (book.SymbolID, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, "symbol"), 10, 16)
	if err != nil {
		http.Error(w, "bad symbol", http.StatusBadRequest)
		return 0, false
	}
	return book.SymbolID(n), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
