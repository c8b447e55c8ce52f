package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"
)

// maxWatchBody bounds one watch message. A 25 Hz x 5 s window is well under this.
const maxWatchBody = 1 << 20

// HandleWatchData accepts a raw or settings message from the watch app
// and replies with OK, sendSettings or ERROR as plain text.
func HandleWatchData(watch Watch, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWatchBody))
		if err != nil {
			logger.Warn("read watch body", zap.Error(err))
			http.Error(w, "ERROR", http.StatusBadRequest)
			return
		}

		reply := watch.UpdateFromJSON(r.Context(), body)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, reply)
	}
}
