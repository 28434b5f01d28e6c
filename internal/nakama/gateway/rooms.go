package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bdobrica/nakama/internal/nakama/personality"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

type roomResponse struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	CreatedAt   time.Time                `json:"created_at"`
	Task        store.Task               `json:"task"`
	Personality *personality.Personality `json:"personality"`
	Members     []string                 `json:"members"`
	Connections int                      `json:"connections"`
}

type createRoomRequest struct {
	Name   string `json:"name"`
	Task   string `json:"task,omitempty"`
	Preset string `json:"preset,omitempty"`
}

type setTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.cfg.Rooms.ListRooms(r.Context())
	if err != nil {
		s.logger.Error("gateway: list rooms failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	out := make([]roomResponse, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, roomResponse{ID: rm.ID, Name: rm.Name, CreatedAt: rm.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var preset *personality.Personality
	if req.Preset != "" {
		p, ok := s.cfg.Personas.Preset(req.Preset)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown preset: "+req.Preset)
			return
		}
		preset = p
	}

	ctx := r.Context()
	rm, err := s.cfg.Rooms.CreateRoom(ctx, strings.TrimSpace(req.Name))
	if err != nil {
		s.logger.Error("gateway: create room failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	if preset != nil {
		s.cfg.Registry.ReplacePersonality(ctx, rm.ID, preset)
	}
	if task := strings.TrimSpace(req.Task); task != "" {
		if err := s.cfg.Registry.SetTask(ctx, rm.ID, store.Task{Title: rm.Name, Description: task}); err != nil {
			s.logger.Error("gateway: save task failed", "room_id", rm.ID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to save task")
			return
		}
	}
	s.logger.Info("gateway: room created", "room_id", rm.ID)
	writeJSON(w, http.StatusCreated, s.describe(r, rm))
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.describe(r, rm))
}

// handleUpdatePersonality applies a partial edit document, or replaces the
// persona wholesale with ?preset=<name> or ?random=true.
func (s *Server) handleUpdatePersonality(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var updated *personality.Personality
	switch q := r.URL.Query(); {
	case q.Get("preset") != "":
		p, ok := s.cfg.Personas.Preset(q.Get("preset"))
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown preset: "+q.Get("preset"))
			return
		}
		updated = s.cfg.Registry.ReplacePersonality(ctx, rm.ID, p)
	case q.Get("random") == "true":
		updated = s.cfg.Registry.ReplacePersonality(ctx, rm.ID, s.cfg.Personas.Random(ctx))
	default:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}
		edits, err := personality.DecodeEdits(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		updated = s.cfg.Registry.UpdatePersonality(ctx, rm.ID, edits)
	}

	s.hub.broadcast(rm.ID, Frame{Type: FramePersonalityUpdated, Personality: updated})
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSetTask(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	var req setTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	task := store.Task{Title: req.Title, Description: req.Description}
	if err := s.cfg.Registry.SetTask(r.Context(), rm.ID, task); err != nil {
		s.logger.Error("gateway: save task failed", "room_id", rm.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to save task")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Registry.Acquire(r.Context(), rm.ID).Task())
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	names := s.cfg.Personas.PresetNames()
	slices.Sort(names)
	writeJSON(w, http.StatusOK, map[string][]string{"presets": names})
}

func (s *Server) lookupRoom(w http.ResponseWriter, r *http.Request) (*store.Room, bool) {
	rm, err := s.cfg.Rooms.GetRoom(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("gateway: get room failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load room")
		return nil, false
	}
	return rm, true
}

func (s *Server) describe(r *http.Request, rm *store.Room) roomResponse {
	live := s.cfg.Registry.Acquire(r.Context(), rm.ID)
	members := live.Members()
	if members == nil {
		members = []string{}
	}
	return roomResponse{
		ID:          rm.ID,
		Name:        rm.Name,
		CreatedAt:   rm.CreatedAt,
		Task:        live.Task(),
		Personality: live.Persona(),
		Members:     members,
		Connections: s.hub.connections(rm.ID),
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}
