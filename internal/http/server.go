package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/masterylab/mastery/internal/log"
	"github.com/masterylab/mastery/pkg/service"
	"github.com/masterylab/mastery/pkg/storage"
)

// StartServer exposes the mastery service over plain HTTP: health,
// stored definitions and execution history.
func StartServer(port string, store storage.Store) error {
	svc := service.NewMasteryService(store, log.GetLogger())
	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/masteries", masteriesHandler(svc))
	http.HandleFunc("/executions", executionsHandler(svc))

	log.GetLogger().Infof("Starting mastery server on :%s", port)
	return http.ListenAndServe(":"+port, nil)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "mastery server is running")
}

func masteriesHandler(svc *service.MasteryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defs, err := svc.ListMasteries()
		if err != nil {
			log.GetLogger().Errorf("Failed to list masteries: %v", err)
			http.Error(w, fmt.Sprintf("Failed to list masteries: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, defs)
	}
}

func executionsHandler(svc *service.MasteryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("mastery")
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "Invalid 'limit' parameter", http.StatusBadRequest)
				return
			}
			limit = n
		}
		recs, err := svc.ListExecutions(name, limit)
		if err != nil {
			log.GetLogger().Errorf("Failed to list executions: %v", err)
			http.Error(w, fmt.Sprintf("Failed to list executions: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
