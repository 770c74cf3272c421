// Package api exposes the room lifecycle over HTTP: create, join, leave,
// lobby state, and the reaction relay. Round play itself rides the event
// substrate, not HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	roomservice "github.com/julienbrs/blindtest-sub000/app/modules/room/application"
	storeevents "github.com/julienbrs/blindtest-sub000/app/shared/events"
	"github.com/julienbrs/blindtest-sub000/app/shared/observability/attr"
	sharedtypes "github.com/julienbrs/blindtest-sub000/app/shared/types"
)

// Broadcaster relays ephemeral signals to a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, subject string, payload []byte) error
}

// Scheduler is the slice of the job queue the API drives: every new room gets
// a stale-room cleanup job, and a room that ends has its jobs cancelled.
type Scheduler interface {
	ScheduleRoomCleanup(ctx context.Context, roomID sharedtypes.RoomID) error
	CancelRoomJobs(ctx context.Context, roomID sharedtypes.RoomID) error
}

// Handlers carries the API's collaborators.
type Handlers struct {
	rooms       roomservice.Service
	broadcaster Broadcaster
	scheduler   Scheduler
	secret      []byte
	logger      *slog.Logger

	mu       sync.Mutex
	limiters map[sharedtypes.PlayerID]*rate.Limiter
}

// NewHandlers builds the API handler set. scheduler may be nil; room cleanup
// is then left to the operator.
func NewHandlers(rooms roomservice.Service, broadcaster Broadcaster, scheduler Scheduler, secret []byte, logger *slog.Logger) *Handlers {
	return &Handlers{
		rooms:       rooms,
		broadcaster: broadcaster,
		scheduler:   scheduler,
		secret:      secret,
		logger:      logger,
		limiters:    make(map[sharedtypes.PlayerID]*rate.Limiter),
	}
}

// Router wires the chi routes.
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/rooms", h.CreateRoom)
	r.Post("/rooms/{code}/join", h.JoinRoom)
	r.Get("/rooms/{code}", h.GetRoom)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(h.secret))
		r.Post("/rooms/{code}/leave", h.LeaveRoom)
		r.Post("/rooms/{code}/react", h.React)
	})
	return r
}

// failureStatus maps service rejections onto HTTP status codes.
func failureStatus(reason string) int {
	switch reason {
	case roomservice.ReasonRoomNotFound:
		return http.StatusNotFound
	case roomservice.ReasonRoomEnded, roomservice.ReasonRoomFull, roomservice.ReasonNicknameTaken:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("Failed to encode response", attr.Error(err))
	}
}

func (h *Handlers) writeFailure(w http.ResponseWriter, failure *roomservice.RoomFailure) {
	h.writeJSON(w, failureStatus(failure.Reason), failure)
}

// CreateRoom opens a room and returns the host's seat plus their token.
func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var input roomservice.CreateRoomInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.rooms.CreateRoom(r.Context(), input)
	if err != nil {
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	if result.Failure != nil {
		h.writeFailure(w, result.Failure)
		return
	}

	created := result.Success.(roomservice.CreateRoomResult)
	token, err := IssueToken(h.secret, created.Host.ID, created.Room.ID)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	if h.scheduler != nil {
		if err := h.scheduler.ScheduleRoomCleanup(r.Context(), created.Room.ID); err != nil {
			h.logger.Warn("Failed to schedule room cleanup",
				attr.RoomID("room_id", created.Room.ID),
				attr.Error(err),
			)
		}
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"room":   created.Room,
		"player": created.Host,
		"token":  token,
	})
}

// JoinRoom seats a player and returns their token plus the current roster.
func (h *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.rooms.JoinRoom(r.Context(), roomservice.JoinRoomInput{
		JoinCode: chi.URLParam(r, "code"),
		Nickname: body.Nickname,
	})
	if err != nil {
		http.Error(w, "failed to join room", http.StatusInternalServerError)
		return
	}
	if result.Failure != nil {
		h.writeFailure(w, result.Failure)
		return
	}

	joined := result.Success.(roomservice.JoinRoomResult)
	token, err := IssueToken(h.secret, joined.Player.ID, joined.Room.ID)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"room":    joined.Room,
		"player":  joined.Player,
		"players": joined.Players,
		"token":   token,
	})
}

// GetRoom returns the lobby view for a join code. Public: knowing the code is
// the room's admission control.
func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	result, err := h.rooms.GetRoomState(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		http.Error(w, "failed to fetch room", http.StatusInternalServerError)
		return
	}
	if result.Failure != nil {
		h.writeFailure(w, result.Failure)
		return
	}
	h.writeJSON(w, http.StatusOK, result.Success)
}

// LeaveRoom removes the authenticated player from their room.
func (h *Handlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.rooms.LeaveRoom(r.Context(), claims.RoomID, claims.PlayerID)
	if err != nil {
		http.Error(w, "failed to leave room", http.StatusInternalServerError)
		return
	}
	if result.Failure != nil {
		h.writeFailure(w, result.Failure)
		return
	}
	left := result.Success.(roomservice.LeaveRoomResult)
	if left.Ended && h.scheduler != nil {
		if err := h.scheduler.CancelRoomJobs(r.Context(), claims.RoomID); err != nil {
			h.logger.Warn("Failed to cancel room jobs",
				attr.RoomID("room_id", claims.RoomID),
				attr.Error(err),
			)
		}
	}
	h.writeJSON(w, http.StatusOK, left)
}

// reactionRate bounds emoji spam per player.
var reactionRate = rate.Limit(2)

const reactionBurst = 5

func (h *Handlers) limiterFor(playerID sharedtypes.PlayerID) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	limiter, ok := h.limiters[playerID]
	if !ok {
		limiter = rate.NewLimiter(reactionRate, reactionBurst)
		h.limiters[playerID] = limiter
	}
	return limiter
}

// React relays an emoji reaction onto the room's broadcast subject. Transport
// only; the game never sees it.
func (h *Handlers) React(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.limiterFor(claims.PlayerID).Allow() {
		http.Error(w, "too many reactions", http.StatusTooManyRequests)
		return
	}

	var body struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Emoji == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payload, err := storeevents.EncodeSignal(storeevents.SignalReaction, storeevents.ReactionSignalV1{
		PlayerID: claims.PlayerID,
		Emoji:    body.Emoji,
	})
	if err != nil {
		http.Error(w, "failed to encode reaction", http.StatusInternalServerError)
		return
	}
	if err := h.broadcaster.Broadcast(r.Context(), storeevents.BroadcastSubject(claims.RoomID), payload); err != nil {
		h.logger.Warn("Failed to relay reaction",
			attr.RoomID("room_id", claims.RoomID),
			attr.Error(err),
		)
		http.Error(w, "failed to relay reaction", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
