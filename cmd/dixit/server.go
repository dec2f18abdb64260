package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/chriskillpack/dixit"
	"github.com/chriskillpack/dixit/cards"
	"github.com/chriskillpack/dixit/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxRequestBytes bounds request bodies, a full table of JPEG cards fits.
const maxRequestBytes = 64 << 20

type Server struct {
	hs     *http.Server
	d      *dixit.Dixit
	db     *dixit.DB
	logger *slog.Logger
}

func NewServer(d *dixit.Dixit, db *dixit.DB, port string, logger *slog.Logger) *Server {
	srv := &Server{
		d:      d,
		db:     db,
		logger: logger,
	}
	if srv.logger == nil {
		srv.logger = slog.Default()
	}

	srv.hs = &http.Server{
		Addr:    net.JoinHostPort("0.0.0.0", port),
		Handler: srv.serveHandler(),
	}

	return srv
}

func (s *Server) Start() error {
	return s.hs.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.hs.Shutdown(ctx)
}

func (s *Server) serveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /clue", s.serveClue())
	mux.Handle("POST /guess", s.serveGuess())
	mux.Handle("GET /guess/{id}/grid", s.serveGrid())
	mux.Handle("GET /healthz", s.serveHealth())

	return mux
}

type clueRequest struct {
	Image       []byte `json:"image"` // base64 in JSON
	Personality string `json:"personality"`
	Turns       *int   `json:"turns"`
}

type clueResponse struct {
	Id     int                  `json:"id"`
	Record *pipeline.ClueRecord `json:"record"`
}

type guessRequest struct {
	Images [][]byte `json:"images"`
	Clue   string   `json:"clue"`
	Turns  *int     `json:"turns"`
}

type guessResponse struct {
	Id     int                   `json:"id"`
	Choice string                `json:"choice"`
	Record *pipeline.GuessRecord `json:"record"`
}

func (s *Server) serveClue() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var cr clueRequest
		if !s.decode(w, req, &cr) {
			return
		}
		img, err := cards.Decode(bytes.NewReader(cr.Image))
		if err != nil {
			s.fail(w, req, http.StatusBadRequest, err)
			return
		}
		hash, err := cards.Hash(img)
		if err != nil {
			s.fail(w, req, http.StatusBadRequest, err)
			return
		}

		personality := cr.Personality
		if personality == "" {
			personality = s.d.Config.Personality
		}
		turns := s.d.Config.ClueTurns
		if cr.Turns != nil {
			turns = *cr.Turns
		}

		rec, err := s.d.ComposeClue(req.Context(), cr.Image, personality, turns)
		if err != nil {
			s.fail(w, req, statusFor(err), err)
			return
		}
		id, err := s.db.InsertClue(req.Context(), rec, hash, cr.Image, time.Now())
		if err != nil {
			s.fail(w, req, http.StatusInternalServerError, err)
			return
		}
		s.reply(w, clueResponse{Id: id, Record: rec})
	}
}

func (s *Server) serveGuess() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var gr guessRequest
		if !s.decode(w, req, &gr) {
			return
		}
		if gr.Clue == "" {
			s.fail(w, req, http.StatusBadRequest, errors.New("missing clue"))
			return
		}

		cs := make([]card, len(gr.Images))
		for i, data := range gr.Images {
			img, err := cards.Decode(bytes.NewReader(data))
			if err != nil {
				s.fail(w, req, http.StatusBadRequest, err)
				return
			}
			cs[i] = card{img: img, data: data}
		}

		turns := s.d.Config.GuessTurns
		if gr.Turns != nil {
			turns = *gr.Turns
		}
		rec, err := s.d.Guess(req.Context(), gr.Images, gr.Clue, turns, nil)
		if err != nil {
			s.fail(w, req, statusFor(err), err)
			return
		}

		grid, err := gridJPEG(cs)
		if err != nil {
			s.fail(w, req, http.StatusInternalServerError, err)
			return
		}
		id, err := s.db.InsertGuess(req.Context(), rec, grid, false, time.Now())
		if err != nil {
			s.fail(w, req, http.StatusInternalServerError, err)
			return
		}
		s.reply(w, guessResponse{Id: id, Choice: rec.ChoiceLabel(), Record: rec})
	}
}

func (s *Server) serveGrid() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.Atoi(req.PathValue("id"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		grid, err := s.db.GuessGrid(req.Context(), id)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(grid)
	}
}

func (s *Server) serveHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		health := s.d.Health()
		for _, ok := range health {
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(health)
				return
			}
		}
		s.reply(w, health)
	}
}

func (s *Server) decode(w http.ResponseWriter, req *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		s.fail(w, req, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, req *http.Request, status int, err error) {
	s.logger.ErrorContext(req.Context(), "request failed", "path", req.URL.Path, "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

// statusFor maps pipeline errors to HTTP statuses. Backend failures are the
// model servers' fault, not the caller's. A backend call that timed out is
// wrapped in its backend error and so maps to 502, not 504. Only context
// errors raised outside a backend call, such as the client going away
// between stages, reach the 504 case.
func statusFor(err error) int {
	var (
		capErr *pipeline.CaptioningBackendError
		vqaErr *pipeline.VQABackendError
		llmErr *pipeline.LLMBackendError
	)
	switch {
	case errors.Is(err, pipeline.ErrNoCandidates), errors.Is(err, pipeline.ErrPrecomputedMismatch):
		return http.StatusBadRequest
	case errors.As(err, &capErr), errors.As(err, &vqaErr), errors.As(err, &llmErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the clue and guess pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.dixit()
			if err != nil {
				return err
			}
			db, err := a.database(ctx)
			if err != nil {
				return err
			}

			srv := NewServer(d, db, port, a.logger)
			a.logger.Info("listening", "addr", srv.hs.Addr)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to listen on")
	return cmd
}
