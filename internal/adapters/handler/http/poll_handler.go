package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vncsmyrnk/pollstream/internal/core/ports"
)

type PollHandler struct {
	service ports.PollService
}

func NewPollHandler(service ports.PollService) *PollHandler {
	return &PollHandler{
		service: service,
	}
}

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type voteRequest struct {
	OptionIndex *int `json:"optionIndex"`
}

func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := ports.CreatePollInput{
		Question: req.Question,
		Options:  req.Options,
	}

	poll, err := h.service.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err, "Failed to create poll")
		return
	}

	writeJSON(w, http.StatusCreated, poll)
}

func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := h.service.ListPolls(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "Failed to list polls")
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	poll, err := h.service.GetPoll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to fetch poll")
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

// Vote requires optionIndex to be a JSON number; a missing or non-integer
// value is rejected before the service is called.
func (h *PollHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionIndex == nil {
		writeError(w, http.StatusBadRequest, "Invalid option index")
		return
	}

	input := ports.VoteInput{
		PollID:      chi.URLParam(r, "id"),
		OptionIndex: *req.OptionIndex,
	}

	poll, err := h.service.Vote(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err, "Failed to vote")
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

func (h *PollHandler) Like(w http.ResponseWriter, r *http.Request) {
	poll, err := h.service.Like(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "Failed to like")
		return
	}

	writeJSON(w, http.StatusOK, poll)
}
