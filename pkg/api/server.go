package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sentinel-labs/sentinel/pkg/agent"
	"github.com/sentinel-labs/sentinel/pkg/contracts"
)

// VaultReader is the read surface the API exposes.
type VaultReader interface {
	GetVault(ctx context.Context, ownerID string) (*contracts.VaultView, error)
	ListOwners(ctx context.Context) ([]string, error)
}

// VaultChecker triggers an immediate monitor pass for one owner.
type VaultChecker interface {
	CheckNow(ctx context.Context, ownerID string) error
}

// Server serves the daemon's HTTP surface.
type Server struct {
	registry VaultReader
	watch    *agent.Watchlist
	checker  VaultChecker
	logger   *slog.Logger

	registerSchema *jsonschema.Schema
	jwtSecret      string
}

// NewServer builds the HTTP surface over the registry and watchlist.
// jwtSecret empty means no auth.
func NewServer(registry VaultReader, watch *agent.Watchlist, jwtSecret string) (*Server, error) {
	schema, err := compileSchema("register-vault", registerVaultSchema)
	if err != nil {
		return nil, err
	}
	return &Server{
		registry:       registry,
		watch:          watch,
		logger:         slog.Default().With("component", "api"),
		registerSchema: schema,
		jwtSecret:      jwtSecret,
	}, nil
}

// SetChecker wires the monitor so a fresh registration gets checked
// out-of-band instead of waiting for the next poll.
func (s *Server) SetChecker(checker VaultChecker) {
	s.checker = checker
}

// SetLogger overrides the default logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger.With("component", "api")
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/vaults", s.handleVaults)
	mux.HandleFunc("/vaults/", s.handleVault)
	mux.HandleFunc("/register-vault", s.handleRegisterVault)

	return RequestID(s.logger, BearerAuth(s.jwtSecret, mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVaults returns the view of every watched vault.
func (s *Server) handleVaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	views := make([]*contracts.VaultView, 0, s.watch.Len())
	for _, ownerID := range s.watch.Owners() {
		view, err := s.registry.GetVault(r.Context(), ownerID)
		if err != nil {
			// Watched but not (or no longer) in the store; skip.
			continue
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"vaults": views})
}

// handleVault returns one vault's view by owner ID.
func (s *Server) handleVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	ownerID := r.URL.Path[len("/vaults/"):]
	if ownerID == "" {
		WriteBadRequest(w, "owner id is required")
		return
	}

	view, err := s.registry.GetVault(r.Context(), ownerID)
	if errors.Is(err, contracts.ErrVaultNotFound) {
		WriteNotFound(w, fmt.Sprintf("no vault for %s", ownerID))
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleRegisterVault adds an owner to the monitoring watchlist. The vault
// must already exist in the registry.
func (s *Server) handleRegisterVault(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		WriteBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.registerSchema.Validate(body); err != nil {
		WriteBadRequest(w, fmt.Sprintf("schema validation failed: %v", err))
		return
	}
	ownerID, _ := body["owner_id"].(string)
	if ownerID == "" {
		ownerID, _ = body["wallet_id"].(string)
	}

	if _, err := s.registry.GetVault(r.Context(), ownerID); err != nil {
		if errors.Is(err, contracts.ErrVaultNotFound) {
			WriteNotFound(w, fmt.Sprintf("no vault for %s", ownerID))
			return
		}
		WriteInternal(w, err)
		return
	}

	added := s.watch.Add(ownerID)
	if !added {
		WriteConflict(w, fmt.Sprintf("%s is already watched", ownerID))
		return
	}

	if s.checker != nil {
		// Out-of-band check so an already-expired vault is handled now
		// rather than on the next poll tick.
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.checker.CheckNow(ctx, id); err != nil {
				s.logger.Warn("post-registration check failed", "owner", id, "error", err)
			}
		}(ownerID)
	}

	s.logger.Info("vault registered for monitoring", "owner", ownerID)
	writeJSON(w, http.StatusCreated, map[string]any{"owner_id": ownerID, "watched": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
