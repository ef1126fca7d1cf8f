package control

import (
	"encoding/json"
	"net/http"
	"sync"
)

// OperationResponse is returned by /init and /shutdown.
type OperationResponse struct {
	Operation string `json:"operation"`
	OK        bool   `json:"ok"`
	Active    bool   `json:"active"`
	Port      int    `json:"port"`
}

// StatusResponse is returned by /status.
type StatusResponse struct {
	Active bool `json:"active"`
	Port   int  `json:"port"`
}

// handler serializes Init and Shutdown; the controller leaves mutual
// exclusion of the two to its caller. Status reads take no lock.
type handler struct {
	target Target
	mu     sync.Mutex
}

func (h *handler) init(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeOperation(w, "init", h.target.Init())
}

func (h *handler) shutdown(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeOperation(w, "shutdown", h.target.Shutdown())
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Active: h.target.IsActive(),
		Port:   h.target.Port(),
	})
}

// writeOperation answers 200 when the operation succeeded and 503 otherwise.
func (h *handler) writeOperation(w http.ResponseWriter, op string, ok bool) {
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, OperationResponse{
		Operation: op,
		OK:        ok,
		Active:    h.target.IsActive(),
		Port:      h.target.Port(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
