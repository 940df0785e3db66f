// Package handlers holds the toy endpoints the demo server puts behind the
// quota middleware.
package handlers

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2rkf/nekoi/middleware"
)

// Response mirrors the envelope the quota middleware uses for its errors, so
// clients parse one shape.
type Response struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status"`
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}

var catalog = map[string]map[string][]string{
	"sfw": {
		"neko":    {"neko-001.png", "neko-002.png", "neko-003.png"},
		"kitsune": {"kitsune-001.png", "kitsune-002.png"},
	},
	"gif": {
		"hug": {"hug-001.gif", "hug-002.gif"},
		"pat": {"pat-001.gif"},
	},
}

func send(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}

// RandomImage serves GET /api/v1/{content_type}/{category}.
func RandomImage(baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := chi.URLParam(r, "content_type")
		category := chi.URLParam(r, "category")

		files := catalog[contentType][category]
		if len(files) == 0 {
			send(w, Response{
				Message: fmt.Sprintf("No images for %s/%s.", contentType, category),
				Status:  http.StatusNotFound,
			})
			return
		}

		file := files[rand.Intn(len(files))]
		send(w, Response{
			ID:      file,
			Status:  http.StatusOK,
			Success: true,
			URL:     baseURL + "/img/" + file,
		})
	}
}

// Quota serves GET /api/v1/me/quota and reports the decision the middleware
// made for this very request.
func Quota(w http.ResponseWriter, r *http.Request) {
	st := middleware.StatusFromContext(r.Context())
	if st == nil {
		send(w, Response{Message: "Quota not tracked for this request.", Status: http.StatusOK, Success: true})
		return
	}

	send(w, Response{
		Message: fmt.Sprintf("%d of %d requests left today, resets in %ds.", st.Remaining, st.Limit, st.ResetAfterSeconds()),
		Status:  http.StatusOK,
		Success: true,
	})
}
