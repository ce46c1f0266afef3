package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the API server
type Server struct {
	escrowHandler      *EscrowHandler
	priceHandler       *PriceHandler
	preferenceHandler  *PreferenceHandler
	transactionHandler *TransactionHandler
	infoHandler        *InfoHandler
	logger             *zap.Logger
	server             *http.Server
}

// NewServer creates a new API server
func NewServer(port int, escrowHandler *EscrowHandler, priceHandler *PriceHandler, preferenceHandler *PreferenceHandler, transactionHandler *TransactionHandler, infoHandler *InfoHandler, logger *zap.Logger) *Server {
	return &Server{
		escrowHandler:      escrowHandler,
		priceHandler:       priceHandler,
		preferenceHandler:  preferenceHandler,
		transactionHandler: transactionHandler,
		infoHandler:        infoHandler,
		logger:             logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the API server
func (s *Server) Start() error {
	router := s.setupRoutes()
	s.server.Handler = router

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Add middleware
	router.Use(s.loggingMiddleware)
	router.Use(s.corsMiddleware)

	// API routes
	api := router.PathPrefix("/api").Subrouter()

	// Escrow endpoints
	api.HandleFunc("/escrows", s.escrowHandler.ListEscrows).Methods("GET")
	api.HandleFunc("/escrows/{address}", s.escrowHandler.GetEscrow).Methods("GET")
	api.HandleFunc("/escrows/{address}/live", s.escrowHandler.GetEscrowLive).Methods("GET")

	// Token endpoints
	api.HandleFunc("/tokens/{address}", s.escrowHandler.GetToken).Methods("GET")
	api.HandleFunc("/prices", s.priceHandler.GetPrices).Methods("GET")

	// Preference endpoints
	api.HandleFunc("/preferences/starred", s.preferenceHandler.GetStarred).Methods("GET")
	api.HandleFunc("/preferences/starred/{address}", s.preferenceHandler.AddStar).Methods("POST")
	api.HandleFunc("/preferences/starred/{address}", s.preferenceHandler.RemoveStar).Methods("DELETE")
	api.HandleFunc("/preferences/starred/{address}/toggle", s.preferenceHandler.ToggleStar).Methods("POST")
	api.HandleFunc("/preferences/names", s.preferenceHandler.GetNames).Methods("GET")
	api.HandleFunc("/preferences/names/{address}", s.preferenceHandler.SetName).Methods("PUT")
	api.HandleFunc("/preferences/names/{address}", s.preferenceHandler.RemoveName).Methods("DELETE")
	api.HandleFunc("/preferences/recent", s.preferenceHandler.GetRecent).Methods("GET")
	api.HandleFunc("/preferences/recent", s.preferenceHandler.AddRecent).Methods("POST")
	api.HandleFunc("/preferences/recent", s.preferenceHandler.ClearRecent).Methods("DELETE")

	// Transaction endpoints
	api.HandleFunc("/transactions/claim", s.transactionHandler.CreateClaim).Methods("POST")
	api.HandleFunc("/transactions/revoke", s.transactionHandler.CreateRevoke).Methods("POST")
	api.HandleFunc("/transactions/disown", s.transactionHandler.CreateDisown).Methods("POST")
	api.HandleFunc("/transactions/approve", s.transactionHandler.CreateApprove).Methods("POST")
	api.HandleFunc("/transactions/deploy", s.transactionHandler.CreateDeploy).Methods("POST")
	api.HandleFunc("/transactions/{tx_id}", s.transactionHandler.GetTransaction).Methods("GET")
	api.HandleFunc("/transactions/{tx_id}/submitted", s.transactionHandler.MarkSubmitted).Methods("POST")
	api.HandleFunc("/transactions/{tx_id}/rejected", s.transactionHandler.MarkRejected).Methods("POST")

	// Deployment info endpoint
	api.HandleFunc("/info", s.infoHandler.GetInfo).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	return router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Call the next handler
		next.ServeHTTP(w, r)

		// Log the request
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// corsMiddleware handles CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health check response", zap.Error(err))
	}
}
