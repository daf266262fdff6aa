package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
)

var serverVersion = "dev"

// SetVersion records the build version reported by /version.
func SetVersion(v string) {
	if v != "" {
		serverVersion = v
	}
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":    "fieldtally",
		"version": serverVersion,
		"go":      runtime.Version(),
	})
}
