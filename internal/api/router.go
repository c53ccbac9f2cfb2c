package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/noteservice"
	"github.com/starford/ansuz/internal/player"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, pl *player.Player, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, pl)
	ah := NewAudioHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD over raw snapshots.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/rename", h.RenameNote)
	r.Get("/notes/*", h.GetSnapshot)
	r.Put("/notes/*", h.PutSnapshot)
	r.Delete("/notes/*", h.DeleteNote)

	// Markup import/export.
	r.Get("/markup/*", h.ExportMarkup)
	r.Put("/markup/*", h.ImportMarkup)

	// Block mutations, keyed by note path. Block ids travel in the
	// body (or query for DELETE) because chi allows a wildcard only as
	// the final segment. The static "move" segment wins over the
	// wildcard in chi's routing trie.
	r.Post("/blocks/move/*", h.MoveBlock)
	r.Post("/blocks/*", h.CreateBlock)
	r.Patch("/blocks/*", h.UpdateBlockRuns)
	r.Delete("/blocks/*", h.RemoveBlock)

	// Timeline join.
	r.Get("/timeline/*", h.Timeline)

	// Recording session.
	r.Post("/recordings/start", h.StartRecording)
	r.Post("/recordings/stop", h.StopRecording)
	r.Get("/recordings/offset", h.SessionOffset)
	r.Get("/recordings", h.ListRecordings)
	r.Get("/recordings/{id}/references", h.RecordingReferences)
	r.Post("/recordings/{id}/references", h.AddReference)

	// Segment player transport.
	r.Get("/player", h.PlayerStatus)
	r.Post("/player/load", h.LoadClip)
	r.Post("/player/play", h.PlayerPlay)
	r.Post("/player/pause", h.PlayerPause)
	r.Post("/player/seek", h.PlayerSeek)
	r.Post("/player/skip", h.PlayerSkip)

	// Audio files: streaming and external import (auth-protected).
	r.Get("/audio/{id}", ah.Stream)
	r.Post("/audio", ah.Import)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
