// Package handler serves readiness over HTTP (GET /health) and the standard
// grpc.health.v1 protocol.
package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"authcore/internal/server/respond"
)

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Pinger is the database readiness check. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is the policy engine readiness check.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server answers health checks. Nil dependencies are skipped.
type Server struct {
	healthpb.UnimplementedHealthServer

	pinger Pinger
	policy PolicyChecker
	now    func() time.Time
}

// NewServer returns a health Server.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{pinger: pinger, policy: policy, now: time.Now}
}

// Ready returns the first failing dependency, or nil.
func (s *Server) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// Check implements grpc.health.v1.Health. Only the overall service ("") is known.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	if err := s.Ready(ctx); err != nil {
		log.Printf("health: not serving: %v", err)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServeHTTP answers GET /health with {"status":"ok","timestamp":...} or 503.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := s.Ready(r.Context()); err != nil {
		log.Printf("health: not ready: %v", err)
		respond.JSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Timestamp: s.now().UTC()})
		return
	}
	respond.JSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: s.now().UTC()})
}
