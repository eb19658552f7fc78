// A standalone mock payment gateway for dev and integration runs. Verdicts
// are scripted through the amount's last two digits, so a scenario needs no
// out-of-band setup: xx13 declines, xx37 answers 503.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/logging"
	"github.com/ArielDRighi/microservices-ecommerce-system-sub005/pkg/metrics"
)

type gateway struct {
	log *zap.Logger
	sm  *metrics.ServerMetrics

	mu       sync.Mutex
	captured map[string]string // orderID -> paymentID
}

type paymentRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

func main() {
	log := logging.New("payment-service")
	defer func() { _ = log.Sync() }()

	g := &gateway{
		log:      log,
		sm:       metrics.NewServerMetrics("payment"),
		captured: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments", g.instrument("payments", g.handlePayment))
	mux.HandleFunc("POST /refunds", g.instrument("refunds", g.handleRefund))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	port := getenv("PORT", "8081")
	log.Info("mock payment gateway listening", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func (g *gateway) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"reason": "invalid json"})
		return
	}
	if req.OrderID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"reason": "order_id and positive amount required"})
		return
	}

	switch req.Amount % 100 {
	case 13:
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"reason": "card declined"})
		return
	case 37:
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"reason": "gateway busy"})
		return
	}

	g.mu.Lock()
	id, ok := g.captured[req.OrderID]
	if !ok {
		id = uuid.NewString()
		g.captured[req.OrderID] = id
	}
	g.mu.Unlock()
	if ok {
		g.log.Info("duplicate capture replayed", zap.String("order_id", req.OrderID))
	}

	writeJSON(w, http.StatusOK, map[string]any{"payment_id": id, "status": "CAPTURED"})
}

func (g *gateway) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"reason": "invalid json"})
		return
	}
	if req.PaymentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"reason": "payment_id required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refund_id": uuid.NewString(), "status": "REFUNDED"})
}

func (g *gateway) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		g.sm.Requests.WithLabelValues(name, "200").Inc()
		g.sm.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
