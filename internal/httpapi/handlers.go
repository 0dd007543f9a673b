package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/room"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Metrics serves the monitor's point-in-time snapshot.
func Metrics(m *health.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Snapshot())
	}
}

// RoomView exposes a room's observable state for admin tooling.
func RoomView(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm := h.Get(chi.URLParam(r, "roomID"))
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		reply := make(chan room.View, 1)
		rm.Inbox() <- room.GetView{Reply: reply}
		select {
		case view := <-reply:
			writeJSON(w, http.StatusOK, struct {
				RoomID           string         `json:"roomId"`
				Version          uint64         `json:"version"`
				LastUpdate       time.Time      `json:"lastUpdate"`
				Participants     int            `json:"participants"`
				HistoryLen       int            `json:"historyLength"`
				PendingConflicts int            `json:"pendingConflicts"`
				OfflineQueues    int            `json:"offlineQueues"`
			}{view.RoomID, view.Version, view.LastUpdate, view.Participants,
				view.HistoryLen, view.PendingConflicts, view.OfflineQueues})
		case <-r.Context().Done():
			http.Error(w, "timeout", http.StatusGatewayTimeout)
		}
	}
}

// ForceResync re-sends the initial snapshot to every participant of a room.
func ForceResync(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm := h.Get(chi.URLParam(r, "roomID"))
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		rm.Inbox() <- room.ForceResync{}
		w.WriteHeader(http.StatusAccepted)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
