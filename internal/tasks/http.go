package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type createTaskRequest struct {
	Description string `json:"description"`
}

type errResponse struct {
	Error string `json:"error"`
}

func RegisterRoutes(r chi.Router, store Store) {
	r.Post("/tasks", createTask(store))
	r.Get("/tasks", listTasks(store))
	r.Post("/tasks/{index}/complete", completeTask(store))
}

// createTask stores the description as given; empty strings are valid tasks.
func createTask(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTaskRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}
		// exactly one object per request
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
			return
		}

		if err := store.Create(r.Context(), req.Description); err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// completeTask answers 204 whether or not the index exists.
func completeTask(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 16)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_index"})
			return
		}

		if err := store.Complete(r.Context(), uint16(index)); err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listTasks(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := store.List(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
			return
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
