package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/noteservice"
)

// maxAudioBytes caps audio imports at roughly ninety minutes of 48 kHz
// stereo 16-bit wav.
const maxAudioBytes = 1 << 30

// AudioHandler serves recording files and accepts external wav imports.
type AudioHandler struct {
	svc *noteservice.Service
}

// NewAudioHandler creates a handler backed by the note service.
func NewAudioHandler(svc *noteservice.Service) *AudioHandler {
	return &AudioHandler{svc: svc}
}

// Stream handles GET /api/audio/{id}.
//
//	@Summary		Stream a recording's wav file
//	@Tags			audio
//	@Produce		octet-stream
//	@Param			id	path		string	true	"Recording id"
//	@Success		200	{string}	string	"Wav bytes; Range requests honored"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/audio/{id} [get]
func (h *AudioHandler) Stream(w http.ResponseWriter, r *http.Request) {
	recID := chi.URLParam(r, "id")
	path, err := h.svc.AudioPath(r.Context(), recID)
	if err != nil {
		respondErr(w, "stream audio", err)
		return
	}
	// ServeFile keeps a preset Content-Type and handles Range headers,
	// so scrubbing works in browser audio elements.
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

// Import handles POST /api/audio (multipart/form-data, fields "note_id"
// and "file").
//
//	@Summary		Import an externally produced wav as a recording
//	@Tags			audio
//	@Accept			mpfd
//	@Produce		json
//	@Param			note_id	formData	string	true	"Note id"
//	@Param			file	formData	file	true	"Wav file"
//	@Success		201		{object}	RecordingDTO
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/audio [post]
func (h *AudioHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	noteID := r.FormValue("note_id")
	if noteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("note_id is required"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	rec, err := h.svc.ImportAudio(r.Context(), noteID, file)
	if err != nil {
		respondErr(w, "import audio", err, slog.String("note", noteID))
		return
	}
	writeJSON(w, http.StatusCreated, recordingToDTO(*rec))
}
