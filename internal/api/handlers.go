package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hibi/internal/index"
	"github.com/starford/hibi/internal/models"
	"github.com/starford/hibi/internal/noteservice"
	"github.com/starford/hibi/internal/rollup"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// pathParam returns a URL parameter, decoding escaped characters such as
// Japanese tag names sent percent-encoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// AppendMessage handles POST /api/messages.
//
//	@Summary		Append a chat message to its daily note
//	@Tags			memos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MessageRequest	true	"Message"
//	@Success		201		{object}	MessageResponse
//	@Success		200		{object}	MessageResponse	"Message ignored (channel not allowed)"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/messages [post]
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AppendMessage(r.Context(), req.toModel())
	if err != nil {
		writeError(w, "append message", err)
		return
	}
	if res.Ignored {
		writeJSON(w, http.StatusOK, MessageResponse{Ignored: true})
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Path: res.Path, Block: res.Block})
}

// Rollup handles POST /api/rollups.
//
//	@Summary		Roll up a daily note (default today)
//	@Tags			rollups
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RollupRequest	false	"Date to roll up"
//	@Success		200		{object}	RollupResponse
//	@Failure		500		{object}	RollupResponse
//	@Security		BearerAuth
//	@Router			/rollups [post]
func (h *Handler) Rollup(w http.ResponseWriter, r *http.Request) {
	var req RollupRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.Rollup(r.Context(), req.Date)
	if err != nil && out.State == "" {
		writeError(w, "rollup", err)
		return
	}
	status := http.StatusOK
	if err != nil {
		slog.Error("rollup failed", slog.String("date", req.Date), slog.String("error", err.Error()))
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, rollupResponse(out))
}

func rollupResponse(out rollup.Outcome) RollupResponse {
	topics := out.Topics
	if topics == nil {
		topics = []string{}
	}
	return RollupResponse{
		State:   string(out.State),
		Reason:  string(out.Reason),
		Date:    out.Date.Format(models.DateLayout),
		Message: out.Message,
		Topics:  topics,
	}
}

// GetDailyNote handles GET /api/notes/daily/{date}.
//
//	@Summary		Read a daily note
//	@Tags			notes
//	@Produce		json
//	@Param			date	path		string	true	"YYYY-MM-DD or today"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/daily/{date} [get]
func (h *Handler) GetDailyNote(w http.ResponseWriter, r *http.Request) {
	date := pathParam(r, "date")
	if date == "today" {
		date = ""
	}
	note, err := h.svc.DailyNote(r.Context(), date)
	if err != nil {
		writeError(w, "get daily note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetTopicNote handles GET /api/notes/topics/{tag}.
//
//	@Summary		Read a topic note
//	@Tags			notes
//	@Produce		json
//	@Param			tag	path		string	true	"Topic tag"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/topics/{tag} [get]
func (h *Handler) GetTopicNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.TopicNote(r.Context(), pathParam(r, "tag"))
	if err != nil {
		writeError(w, "get topic note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Backlinks handles GET /api/backlinks.
//
//	@Summary		List notes linking to a date or tag
//	@Tags			search
//	@Produce		json
//	@Param			target	query		string	true	"Link target (YYYY-MM-DD or tag)"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	bl, err := h.svc.Backlinks(r.Context(), target)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Target: target, Backlinks: bl})
}

// Tags handles GET /api/tags.
//
//	@Summary		List tags with note counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// NotesByTag handles GET /api/tags/{tag}/notes.
//
//	@Summary		List notes carrying a tag
//	@Tags			tags
//	@Produce		json
//	@Param			tag	path		string	true	"Tag"
//	@Success		200	{object}	TagNotesResponse
//	@Security		BearerAuth
//	@Router			/tags/{tag}/notes [get]
func (h *Handler) NotesByTag(w http.ResponseWriter, r *http.Request) {
	tag := pathParam(r, "tag")
	notes, err := h.svc.NotesByTag(r.Context(), tag)
	if err != nil {
		writeError(w, "notes by tag", err)
		return
	}
	writeJSON(w, http.StatusOK, TagNotesResponse{Tag: tag, Notes: notes})
}

// StartSelection handles POST /api/selections.
//
//	@Summary		Offer topic candidates for a text
//	@Tags			selections
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectionRequest	true	"Source text"
//	@Success		201		{object}	selection.Session
//	@Failure		422		{object}	errResponse	"No candidates"
//	@Security		BearerAuth
//	@Router			/selections [post]
func (h *Handler) StartSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.StartSelection(r.Context(), req.Text)
	if err != nil {
		writeError(w, "start selection", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GetSelection handles GET /api/selections/{id}.
//
//	@Summary		Read a topic selection
//	@Tags			selections
//	@Produce		json
//	@Param			id	path		string	true	"Selection ID"
//	@Success		200	{object}	selection.Session
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/selections/{id} [get]
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Selection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get selection", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Choose handles POST /api/selections/{id}/choices.
//
//	@Summary		Choose one candidate
//	@Tags			selections
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Selection ID"
//	@Param			body	body		ChoiceRequest	true	"Choice"
//	@Success		200		{object}	ChoiceResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse	"Already chosen"
//	@Failure		410		{object}	errResponse	"Expired"
//	@Security		BearerAuth
//	@Router			/selections/{id}/choices [post]
func (h *Handler) Choose(w http.ResponseWriter, r *http.Request) {
	var req ChoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Choose(r.Context(), chi.URLParam(r, "id"), req.Index, req.Action)
	if err != nil {
		writeError(w, "choose", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AppendSummary handles POST /api/selections/{id}/append-summary.
//
//	@Summary		Append a looked-up topic summary to today's note
//	@Tags			selections
//	@Produce		json
//	@Param			id	path		string	true	"Selection ID"
//	@Success		200	{object}	ChoiceResponse
//	@Failure		400	{object}	errResponse	"No lookup made"
//	@Security		BearerAuth
//	@Router			/selections/{id}/append-summary [post]
func (h *Handler) AppendSummary(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AppendSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "append summary", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
