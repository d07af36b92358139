// Dev stand-in for the notification gateway the alert sender posts to.
// Records everything it receives and can inject latency and failures.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type fakeGateway struct {
	start    time.Time
	latency  time.Duration
	failRate float64

	mu          sync.Mutex
	byKind      map[string]int64
	byRecipient map[string]int64
	lastMessage string
	totalCalls  int64
}

type notification struct {
	Kind           string `json:"kind"`
	RecipientEmail string `json:"recipient_email"`
	DeviceID       string `json:"device_id"`
	Message        string `json:"message"`
}

func main() {
	addr := getenvDefault("FAKE_GATEWAY_ADDR", ":18025")
	latencyMs := getenvIntDefault("FAKE_GATEWAY_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_GATEWAY_FAIL_RATE", 0)

	gw := &fakeGateway{
		start:       time.Now().UTC(),
		latency:     time.Duration(latencyMs) * time.Millisecond,
		failRate:    failRate,
		byKind:      make(map[string]int64),
		byRecipient: make(map[string]int64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", gw.handleHealth)
	mux.HandleFunc("/metrics", gw.handleMetrics)
	mux.HandleFunc("/send", gw.handleSend)

	log.Printf("fake notification gateway listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (g *fakeGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (g *fakeGateway) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	payload := map[string]any{
		"started_at":   g.start.Format(time.RFC3339),
		"total":        atomic.LoadInt64(&g.totalCalls),
		"by_kind":      g.byKind,
		"by_recipient": g.byRecipient,
		"last_message": g.lastMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (g *fakeGateway) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if g.latency > 0 {
		time.Sleep(g.latency)
	}

	var n notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	g.record(n)

	if g.failRate > 0 && rand.Float64() < g.failRate {
		http.Error(w, "fake gateway failure", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

func (g *fakeGateway) record(n notification) {
	atomic.AddInt64(&g.totalCalls, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if n.Kind != "" {
		g.byKind[n.Kind]++
	}
	if n.RecipientEmail != "" {
		g.byRecipient[n.RecipientEmail]++
	}
	g.lastMessage = n.Message
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
