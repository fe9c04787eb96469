package main

import (
	"net"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func (s *Server) getLimiter(ip string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, exists := s.limiters[ip]
	if !exists {
		// 10 req/s with burst 20; enough headroom for polling clients.
		limiter = rate.NewLimiter(10, 20)
		s.limiters[ip] = limiter
	}
	return limiter
}

func (s *Server) middlewareRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.getLimiter(ip).Allow() {
			jsonDetail(w, http.StatusTooManyRequests, "rate limit")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// middlewareRequestID tags every request for log correlation.
func (s *Server) middlewareRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		if s.cfg.Debug {
			s.info.Printf("%s %s %s", reqID, r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

// middlewareCORS lets browser clients talk to the API directly.
func middlewareCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
