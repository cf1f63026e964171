package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthCheck reports process liveness.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
