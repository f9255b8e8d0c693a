package handlers

import "net/http"

// Health reports that the process is up. It does not check dependencies.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Server is running!"})
}
