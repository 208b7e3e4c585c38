package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/whiteboard-labs/whiteboard-relay/backend/model"
	"github.com/whiteboard-labs/whiteboard-relay/backend/storage/memory"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	CreateRoom(name string, private bool) (*model.Room, error)
	GetRoom(code string) (*model.Room, error)
	JoinRoom(code string, userID string) (*model.Room, error)
	GetCanvas(code string) (*model.CanvasState, error)
	PutCanvas(code string, data []json.RawMessage) (*model.CanvasState, error)
	Stats() (rooms, conns int)
}

type CreateRoomRequest struct {
	Name    string `json:"name"`
	Private bool   `json:"private"`
}

type JoinRequest struct {
	RoomCode string `json:"room_code"`
	UserID   string `json:"user_id"`
}

type CanvasRequest struct {
	Data []json.RawMessage `json:"data"`
}

type StatsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ListenAddr  string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /api/room", srv.createRoom)
	r.HandleFunc("GET /api/room/{code}", srv.getRoom)
	r.HandleFunc("POST /api/room/join", srv.joinRoom)
	r.HandleFunc("GET /api/room/{code}/canvas", srv.getCanvas)
	r.HandleFunc("PUT /api/room/{code}/canvas", srv.putCanvas)
	r.HandleFunc("GET /api/stats", srv.stats)
	r.HandleFunc("OPTIONS /", corsHandler)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var req CreateRoomRequest
	if !readInto(w, r, &req) {
		return
	}

	srv.logger.Trace().Any("request", req).Msg("got create room request")

	room, err := srv.svc.CreateRoom(req.Name, req.Private)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, &GenericResponse{Data: room})
}

func (srv *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	room, err := srv.svc.GetRoom(r.PathValue("code"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: room})
}

func (srv *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var req JoinRequest
	if !readInto(w, r, &req) {
		return
	}

	srv.logger.Trace().Any("request", req).Msg("got join request")

	if _, err := srv.svc.JoinRoom(req.RoomCode, req.UserID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Message: "OK"})
}

func (srv *Server) getCanvas(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	canvas, err := srv.svc.GetCanvas(r.PathValue("code"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: canvas})
}

func (srv *Server) putCanvas(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var req CanvasRequest
	if !readInto(w, r, &req) {
		return
	}

	canvas, err := srv.svc.PutCanvas(r.PathValue("code"), req.Data)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, &GenericResponse{Data: canvas})
}

func (srv *Server) stats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	rooms, conns := srv.svc.Stats()
	writeJSON(w, http.StatusOK, &StatsResponse{Rooms: rooms, Connections: conns})
}

func statusFor(err error) int {
	if errors.Is(err, memory.ErrRoomNotFound) {
		return http.StatusNotFound
	}
	return http.StatusConflict
}

func readInto(w http.ResponseWriter, r *http.Request, v any) bool {
	body, _ := io.ReadAll(r.Body)
	defer func() {
		_ = r.Body.Close()
	}()
	if err := json.Unmarshal(body, v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, &GenericResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, code, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
