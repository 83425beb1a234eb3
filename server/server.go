// Package server exposes decoding, summaries, piano rolls and time
// warping over HTTP. Uploaded scores live in memory and are never
// modified once stored.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"go-symusic/abc"
	"go-symusic/config"
	"go-symusic/debug"
	"go-symusic/midi"
	"go-symusic/pianoroll"
	"go-symusic/render"
	"go-symusic/score"
	"go-symusic/warp"
)

// ABCContentType selects the ABC parser for uploads.
const ABCContentType = "text/vnd.abc"

type Server struct {
	addr      string
	maxUpload int64
	roll      pianoroll.Options
	image     render.Options
	abc       abc.Options

	mu     sync.RWMutex
	scores map[uuid.UUID]*score.Score[score.Tick]

	router *mux.Router
}

// New builds a server from the config sections it uses.
func New(cfg *config.Config) (*Server, error) {
	roll, err := pianoroll.OptionsFromConfig(cfg.Pianoroll)
	if err != nil {
		return nil, err
	}
	img, err := render.OptionsFromConfig(cfg.Render)
	if err != nil {
		return nil, err
	}
	s := &Server{
		addr:      cfg.Server.Addr,
		maxUpload: cfg.Server.MaxUpload,
		roll:      roll,
		image:     img,
		abc:       abc.OptionsFromConfig(cfg.ABC),
		scores:    make(map[uuid.UUID]*score.Score[score.Tick]),
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 32 << 20
	}

	r := mux.NewRouter()
	r.HandleFunc("/scores", s.create).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/scores/{id}", s.summary).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/scores/{id}", s.remove).Methods(http.MethodDelete)
	r.HandleFunc("/scores/{id}/midi", s.midiFile).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/scores/{id}/tracks/{idx:[0-9]+}/pianoroll.png", s.pianorollPNG).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/scores/{id}/adjust", s.adjust).Methods(http.MethodPost, http.MethodOptions)
	r.Use(mux.CORSMethodMiddleware(r))
	r.Use(s.logRequests)
	s.router = r
	return s, nil
}

// Router returns the request handler.
func (s *Server) Router() *mux.Router { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	debug.Log("server", "listening on %s", s.addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		debug.Log("server", "%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Log("server", "encode response: %v", err)
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Offset *int64 `json:"offset,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// writeError maps engine errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	var ce *score.CodecError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &ce):
		status = http.StatusBadRequest
		if ce.Line > 0 {
			body.Line, body.Column = ce.Line, ce.Column
		} else {
			body.Offset = &ce.Offset
		}
	case errors.Is(err, score.ErrValue), errors.Is(err, score.ErrIndex):
		status = http.StatusBadRequest
	case errors.Is(err, score.ErrNotImplemented):
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, body)
}

var errNotFound = errors.New("no such score")

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*score.Score[score.Tick], bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err == nil {
		s.mu.RLock()
		sc, ok := s.scores[id]
		s.mu.RUnlock()
		if ok {
			return sc, true
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody{Error: errNotFound.Error()})
	return nil, false
}

func (s *Server) store(sc *score.Score[score.Tick]) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	s.scores[id] = sc
	s.mu.Unlock()
	return id
}

type created struct {
	ID      string  `json:"id"`
	Summary Summary `json:"summary"`
}

func (s *Server) created(w http.ResponseWriter, sc *score.Score[score.Tick]) {
	sum, err := Summarize(sc)
	if err != nil {
		writeError(w, err)
		return
	}
	id := s.store(sc)
	writeJSON(w, http.StatusCreated, created{ID: id.String(), Summary: sum})
}

// create accepts a Standard MIDI File, or ABC text when the content type
// is text/vnd.abc.
func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		writeError(w, err)
		return
	}
	var sc *score.Score[score.Tick]
	if strings.HasPrefix(r.Header.Get("Content-Type"), ABCContentType) {
		sc, err = abc.ParseWith(string(data), s.abc)
	} else {
		sc, err = midi.Decode(data)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.created(w, sc)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sum, err := Summarize(sc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookup(w, r); !ok {
		return
	}
	id := uuid.MustParse(mux.Vars(r)["id"])
	s.mu.Lock()
	delete(s.scores, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) midiFile(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, err := midi.Encode(sc)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Server) pianorollPNG(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	idx, _ := strconv.Atoi(mux.Vars(r)["idx"])
	if idx >= len(sc.Tracks) {
		writeError(w, fmt.Errorf("track %d of %d: %w", idx, len(sc.Tracks), score.ErrIndex))
		return
	}

	q := r.URL.Query()
	roll := s.roll
	img := s.image
	if name := q.Get("mode"); name != "" {
		mode, err := pianoroll.ParseMode(name)
		if err != nil {
			writeError(w, err)
			return
		}
		img.Mode = mode
	} else {
		img.Mode = roll.Modes[0]
	}
	roll.Modes = []pianoroll.Mode{img.Mode}
	if v := q.Get("ticksPerPixel"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, score.NewValueError("ticksPerPixel", "%q is not an integer", v))
			return
		}
		img.TicksPerPixel = n
	}

	raster, err := pianoroll.FromTrack(sc.Tracks[idx], roll)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.PNG(&buf, raster, img); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	buf.WriteTo(w)
}

type adjustRequest struct {
	Old []score.Tick `json:"old"`
	New []score.Tick `json:"new"`
}

// adjust warps a stored score and stores the result under a new id.
func (s *Server) adjust(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUpload)).Decode(&req); err != nil {
		writeError(w, score.NewValueError("adjust body", "%v", err))
		return
	}
	out, err := warp.AdjustTime(sc, req.Old, req.New)
	if err != nil {
		writeError(w, err)
		return
	}
	s.created(w, out)
}
