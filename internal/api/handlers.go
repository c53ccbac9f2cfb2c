package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/player"
)

// maxBodyBytes caps JSON and snapshot request bodies.
const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
	pl  *player.Player

	mu   sync.Mutex
	clip *models.Clip // last clip loaded into the player
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, pl *player.Player) *Handler {
	return &Handler{svc: svc, pl: pl}
}

// notePath extracts the note id from the URL wildcard. Supports encoded
// slashes from OpenAPI clients (e.g. meetings%2Fstandup).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List all notes in the vault
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	metas, err := h.svc.ListNotes(r.Context())
	if err != nil {
		respondErr(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: metas, Total: len(metas)})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note, optionally seeded from markup
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.ID, []byte(req.Markup))
	if err != nil {
		respondErr(w, "create note", err, slog.String("note", req.ID))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// RenameNote handles POST /api/notes/rename.
//
//	@Summary		Move a note to a new id, carrying its recordings along
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameNoteRequest	true	"Old and new ids"
//	@Success		200		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/rename [post]
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req RenameNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ID == "" || req.NewID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id and new_id are required"))
		return
	}
	note, err := h.svc.RenameNote(r.Context(), req.ID, req.NewID)
	if err != nil {
		respondErr(w, "rename note", err, slog.String("note", req.ID))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// GetSnapshot handles GET /api/notes/*.
//
//	@Summary		Get a note's raw snapshot document
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note id"
//	@Success		200		{string}	string	"Snapshot JSON; ETag carries the checksum"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	data, sum, err := h.svc.GetSnapshot(r.Context(), id)
	if err != nil {
		respondErr(w, "get snapshot", err, slog.String("note", id))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", checksum.ETag(sum))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("snapshot write failed", slog.String("note", id), slog.String("error", err.Error()))
	}
}

// PutSnapshot handles PUT /api/notes/*.
//
//	@Summary		Replace a note's snapshot with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string	true	"Note id"
//	@Param			If-Match	header		string	false	"Checksum for optimistic concurrency"
//	@Param			body		body		string	true	"Snapshot JSON"
//	@Success		200			{object}	models.Note
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) PutSnapshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("snapshot body is required"))
		return
	}

	ifMatch := checksum.FromETag(r.Header.Get("If-Match"))

	note, err := h.svc.PutSnapshot(r.Context(), id, body, ifMatch)
	if err != nil {
		respondErr(w, "put snapshot", err, slog.String("note", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note, keeping its recordings and references
//	@Tags			notes
//	@Param			path	path	string	true	"Note id"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		respondErr(w, "delete note", err, slog.String("note", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportMarkup handles GET /api/markup/*.
//
//	@Summary		Export a note as markup text
//	@Tags			markup
//	@Produce		plain
//	@Param			path	path		string	true	"Note id"
//	@Success		200		{string}	string	"Markup text"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/markup/{path} [get]
func (h *Handler) ExportMarkup(w http.ResponseWriter, r *http.Request) {
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	text, err := h.svc.ExportMarkup(r.Context(), id)
	if err != nil {
		respondErr(w, "export markup", err, slog.String("note", id))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(text); err != nil {
		slog.Error("markup write failed", slog.String("note", id), slog.String("error", err.Error()))
	}
}

// ImportMarkup handles PUT /api/markup/*.
//
//	@Summary		Replace a note's content from markup text
//	@Tags			markup
//	@Accept			plain
//	@Produce		json
//	@Param			path	path		string	true	"Note id"
//	@Param			body	body		string	true	"Markup text"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/markup/{path} [put]
func (h *Handler) ImportMarkup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	note, err := h.svc.ImportMarkup(r.Context(), id, body)
	if err != nil {
		respondErr(w, "import markup", err, slog.String("note", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateBlock handles POST /api/blocks/*.
//
//	@Summary		Insert a block under a parent
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note id"
//	@Param			body	body		CreateBlockRequest	true	"Parent, position and block"
//	@Success		201		{object}	BlockDTO
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{path} [post]
func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	var req CreateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ParentID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("parent_id is required"))
		return
	}
	b, err := req.Block.toBlock()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	created, err := h.svc.CreateBlock(r.Context(), id, req.ParentID, index, b)
	if err != nil {
		respondErr(w, "create block", err, slog.String("note", id))
		return
	}
	writeJSON(w, http.StatusCreated, blockToDTO(created))
}

// UpdateBlockRuns handles PATCH /api/blocks/*.
//
//	@Summary		Replace a block's inline text runs
//	@Tags			blocks
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note id"
//	@Param			body	body		UpdateBlockRequest	true	"Block id and new runs"
//	@Success		200		{object}	BlockDTO
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{path} [patch]
func (h *Handler) UpdateBlockRuns(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	var req UpdateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.BlockID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("block_id is required"))
		return
	}
	updated, err := h.svc.UpdateBlockRuns(r.Context(), id, req.BlockID, runsFromDTO(req.Runs))
	if err != nil {
		respondErr(w, "update block", err, slog.String("note", id), slog.String("block", req.BlockID))
		return
	}
	writeJSON(w, http.StatusOK, blockToDTO(updated))
}

// RemoveBlock handles DELETE /api/blocks/*.
//
//	@Summary		Remove a block and its subtree
//	@Tags			blocks
//	@Param			path	path	string	true	"Note id"
//	@Param			block	query	string	true	"Block id"
//	@Success		204		"Block removed"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/{path} [delete]
func (h *Handler) RemoveBlock(w http.ResponseWriter, r *http.Request) {
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	blockID := r.URL.Query().Get("block")
	if blockID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'block' is required"))
		return
	}
	if err := h.svc.RemoveBlock(r.Context(), id, blockID); err != nil {
		respondErr(w, "remove block", err, slog.String("note", id), slog.String("block", blockID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveBlock handles POST /api/blocks/move/*.
//
//	@Summary		Move a block under a new parent
//	@Tags			blocks
//	@Accept			json
//	@Param			path	path	string				true	"Note id"
//	@Param			body	body	MoveBlockRequest	true	"Block, new parent and position"
//	@Success		204		"Block moved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/blocks/move/{path} [post]
func (h *Handler) MoveBlock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	var req MoveBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.BlockID == "" || req.ParentID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("block_id and parent_id are required"))
		return
	}
	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	if err := h.svc.MoveBlock(r.Context(), id, req.BlockID, req.ParentID, index); err != nil {
		respondErr(w, "move block", err, slog.String("note", id), slog.String("block", req.BlockID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Timeline handles GET /api/timeline/*.
//
//	@Summary		List a note's audio references in capture order
//	@Tags			timeline
//	@Produce		json
//	@Param			path	path		string	true	"Note id"
//	@Success		200		{object}	TimelineResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/timeline/{path} [get]
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	id := notePath(r)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note id is required"))
		return
	}
	entries, err := h.svc.Timeline(r.Context(), id)
	if err != nil {
		respondErr(w, "timeline", err, slog.String("note", id))
		return
	}
	if entries == nil {
		entries = []models.TimelineEntry{}
	}
	writeJSON(w, http.StatusOK, TimelineResponse{Entries: entries})
}

// StartRecording handles POST /api/recordings/start.
//
//	@Summary		Start capturing audio against a note
//	@Tags			recordings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		StartRecordingRequest	true	"Note to record against"
//	@Success		201		{object}	RecordingDTO
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recordings/start [post]
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req StartRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.NoteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note_id is required"))
		return
	}
	rec, err := h.svc.StartRecording(r.Context(), req.NoteID)
	if err != nil {
		respondErr(w, "start recording", err, slog.String("note", req.NoteID))
		return
	}
	writeJSON(w, http.StatusCreated, recordingToDTO(*rec))
}

// StopRecording handles POST /api/recordings/stop.
//
//	@Summary		Stop the active capture session
//	@Tags			recordings
//	@Produce		json
//	@Success		200	{object}	RecordingDTO
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recordings/stop [post]
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.StopRecording(r.Context())
	if err != nil {
		respondErr(w, "stop recording", err)
		return
	}
	writeJSON(w, http.StatusOK, recordingToDTO(*rec))
}

// SessionOffset handles GET /api/recordings/offset.
//
//	@Summary		Report the recording session state and elapsed offset
//	@Tags			recordings
//	@Produce		json
//	@Success		200	{object}	SessionStatusResponse
//	@Security		BearerAuth
//	@Router			/recordings/offset [get]
func (h *Handler) SessionOffset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionToDTO(h.svc.SessionState()))
}

// ListRecordings handles GET /api/recordings.
//
//	@Summary		List a note's recordings
//	@Tags			recordings
//	@Produce		json
//	@Param			note	query		string	true	"Note id"
//	@Success		200		{object}	RecordingListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recordings [get]
func (h *Handler) ListRecordings(w http.ResponseWriter, r *http.Request) {
	noteID := r.URL.Query().Get("note")
	if noteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'note' is required"))
		return
	}
	recs, err := h.svc.Recordings(r.Context(), noteID)
	if err != nil {
		respondErr(w, "list recordings", err, slog.String("note", noteID))
		return
	}
	out := make([]RecordingDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordingToDTO(rec))
	}
	writeJSON(w, http.StatusOK, RecordingListResponse{Recordings: out})
}

// RecordingReferences handles GET /api/recordings/{id}/references.
//
//	@Summary		List a recording's references in offset order
//	@Tags			recordings
//	@Produce		json
//	@Param			id	path		string	true	"Recording id"
//	@Success		200	{object}	ReferenceListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recordings/{id}/references [get]
func (h *Handler) RecordingReferences(w http.ResponseWriter, r *http.Request) {
	recID := chi.URLParam(r, "id")
	refs, err := h.svc.RecordingReferences(r.Context(), recID)
	if err != nil {
		respondErr(w, "list references", err, slog.String("recording", recID))
		return
	}
	out := make([]ReferenceDTO, 0, len(refs))
	for _, ref := range refs {
		out = append(out, referenceToDTO(ref))
	}
	writeJSON(w, http.StatusOK, ReferenceListResponse{References: out})
}

// AddReference handles POST /api/recordings/{id}/references.
//
//	@Summary		Link a block to a recording moment by hand
//	@Tags			recordings
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Recording id"
//	@Param			body	body		AddReferenceRequest	true	"Block and offsets"
//	@Success		201		{object}	ReferenceDTO
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/recordings/{id}/references [post]
func (h *Handler) AddReference(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	recID := chi.URLParam(r, "id")
	var req AddReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.BlockID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("block_id is required"))
		return
	}
	if req.OffsetMs < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("offset_ms must be non-negative"))
		return
	}
	if req.EndOffsetMs != nil && *req.EndOffsetMs <= req.OffsetMs {
		writeJSON(w, http.StatusBadRequest, errorBody("end_offset_ms must be greater than offset_ms"))
		return
	}
	ref, err := h.svc.AddManualReference(r.Context(), recID, req.BlockID, req.OffsetMs, req.EndOffsetMs)
	if err != nil {
		respondErr(w, "add reference", err, slog.String("recording", recID))
		return
	}
	writeJSON(w, http.StatusCreated, referenceToDTO(*ref))
}

// PlayerStatus handles GET /api/player.
//
//	@Summary		Report the player transport state
//	@Tags			player
//	@Produce		json
//	@Success		200	{object}	PlayerStatusResponse
//	@Security		BearerAuth
//	@Router			/player [get]
func (h *Handler) PlayerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, playerToDTO(h.pl.Status(), h.currentClip()))
}

// LoadClip handles POST /api/player/load.
//
//	@Summary		Load a playable segment into the player
//	@Tags			player
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoadClipRequest	true	"Segment selector"
//	@Success		200		{object}	PlayerStatusResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/player/load [post]
func (h *Handler) LoadClip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req LoadClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.BlockID == "" && req.RecordingID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("block_id or recording_id is required"))
		return
	}

	var clip *models.Clip
	if req.BlockID != "" {
		resolved, err := h.svc.ResolveClip(r.Context(), req.RecordingID, req.BlockID)
		if err != nil {
			respondErr(w, "resolve clip", err, slog.String("block", req.BlockID))
			return
		}
		clip = resolved
	} else {
		// Whole-recording playback: the player clamps an end of 0 to
		// the file's duration.
		path, err := h.svc.AudioPath(r.Context(), req.RecordingID)
		if err != nil {
			respondErr(w, "resolve clip", err, slog.String("recording", req.RecordingID))
			return
		}
		clip = &models.Clip{RecordingID: req.RecordingID, FilePath: path}
	}
	if req.StartMs != nil {
		clip.StartMs = *req.StartMs
	}
	if req.EndMs != nil {
		clip.EndMs = *req.EndMs
	}

	path := clip.FilePath
	err := h.pl.Load(func() (player.Source, error) {
		return player.NewFileSource(path)
	}, msToDuration(clip.StartMs), msToDuration(clip.EndMs))
	if err != nil {
		respondErr(w, "load clip", err, slog.String("recording", clip.RecordingID))
		return
	}

	h.mu.Lock()
	h.clip = clip
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, playerToDTO(h.pl.Status(), clip))
}

// PlayerPlay handles POST /api/player/play.
//
//	@Summary		Start or resume playback of the loaded clip
//	@Tags			player
//	@Produce		json
//	@Success		200	{object}	PlayerStatusResponse
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/player/play [post]
func (h *Handler) PlayerPlay(w http.ResponseWriter, r *http.Request) {
	if err := h.pl.Play(); err != nil {
		respondErr(w, "player play", err)
		return
	}
	writeJSON(w, http.StatusOK, playerToDTO(h.pl.Status(), h.currentClip()))
}

// PlayerPause handles POST /api/player/pause.
//
//	@Summary		Pause playback, keeping the playhead in place
//	@Tags			player
//	@Produce		json
//	@Success		200	{object}	PlayerStatusResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/player/pause [post]
func (h *Handler) PlayerPause(w http.ResponseWriter, r *http.Request) {
	if err := h.pl.Pause(); err != nil {
		respondErr(w, "player pause", err)
		return
	}
	writeJSON(w, http.StatusOK, playerToDTO(h.pl.Status(), h.currentClip()))
}

// PlayerSeek handles POST /api/player/seek.
//
//	@Summary		Seek to an absolute clip-relative position
//	@Tags			player
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SeekRequest	true	"Clip-relative position"
//	@Success		200		{object}	PlayerStatusResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/player/seek [post]
func (h *Handler) PlayerSeek(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := h.pl.Seek(msToDuration(req.PositionMs)); err != nil {
		respondErr(w, "player seek", err)
		return
	}
	writeJSON(w, http.StatusOK, playerToDTO(h.pl.Status(), h.currentClip()))
}

// PlayerSkip handles POST /api/player/skip.
//
//	@Summary		Jump forward or backward within the clip
//	@Tags			player
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SkipRequest	true	"Signed jump in milliseconds"
//	@Success		200		{object}	PlayerStatusResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/player/skip [post]
func (h *Handler) PlayerSkip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req SkipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	var err error
	if req.DeltaMs >= 0 {
		err = h.pl.SkipForward(msToDuration(req.DeltaMs))
	} else {
		err = h.pl.SkipBackward(msToDuration(-req.DeltaMs))
	}
	if err != nil {
		respondErr(w, "player skip", err)
		return
	}
	writeJSON(w, http.StatusOK, playerToDTO(h.pl.Status(), h.currentClip()))
}

func (h *Handler) currentClip() *models.Clip {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clip
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
