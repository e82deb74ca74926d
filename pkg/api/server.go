// ScopeTerm
// Copyright (c) 2026 The ScopeTerm Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of ScopeTerm.
//
// ScopeTerm is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ScopeTerm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ScopeTerm.  If not, see <http://www.gnu.org/licenses/>.

// Package api serves the live plot feed: JSON over HTTP for polling
// clients and JSON-RPC over a websocket that also pushes session
// notifications.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api/methods"
	"github.com/scopeterm/scopeterm/pkg/api/middleware"
	"github.com/scopeterm/scopeterm/pkg/api/models"
	"github.com/scopeterm/scopeterm/pkg/api/models/requests"
	"github.com/scopeterm/scopeterm/pkg/api/validation"
	"github.com/scopeterm/scopeterm/pkg/decoder"
	"github.com/scopeterm/scopeterm/pkg/helpers"
	"github.com/scopeterm/scopeterm/pkg/service/broker"
	"github.com/scopeterm/scopeterm/pkg/session"
)

const (
	RequestTimeout    = 10 * time.Second
	notificationQueue = 256
	shutdownTimeout   = 2 * time.Second
)

var (
	JSONRPCErrorParseError = models.ErrorObject{
		Code:    -32700,
		Message: "Parse error",
	}
	JSONRPCErrorInvalidRequest = models.ErrorObject{
		Code:    -32600,
		Message: "Invalid Request",
	}
	JSONRPCErrorMethodNotFound = models.ErrorObject{
		Code:    -32601,
		Message: "Method not found",
	}
	JSONRPCErrorInvalidParams = models.ErrorObject{
		Code:    -32602,
		Message: "Invalid params",
	}
	JSONRPCErrorServerError = models.ErrorObject{
		Code:    -32000,
		Message: "Server error",
	}
)

type handlerFunc func(requests.RequestEnv) (any, error)

var methodMap = map[string]handlerFunc{
	models.MethodPing:   methods.HandlePing,
	models.MethodStatus: methods.HandleStatus,
	models.MethodSeries: methods.HandleSeries,
	models.MethodSend:   methods.HandleSend,
	models.MethodPorts:  methods.HandlePorts,
}

type Options struct {
	Session        requests.Session
	Broker         *broker.Broker
	Limiter        *middleware.ClientLimiter
	ListPorts      func() ([]helpers.SerialPortInfo, error)
	AllowedOrigins []string
}

type Server struct {
	session   requests.Session
	broker    *broker.Broker
	limiter   *middleware.ClientLimiter
	listPorts func() ([]helpers.SerialPortInfo, error)
	melody    *melody.Melody
	router    chi.Router
}

// NewServer builds the router. Notifications are only pushed once Start
// or Broadcast runs.
func NewServer(opts Options) *Server {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = middleware.NewClientLimiter(nil)
	}
	listPorts := opts.ListPorts
	if listPorts == nil {
		listPorts = helpers.GetSerialPorts
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	s := &Server{
		session:   opts.Session,
		broker:    opts.Broker,
		limiter:   limiter,
		listPorts: listPorts,
		melody:    melody.New(),
	}
	s.melody.Upgrader.CheckOrigin = func(_ *http.Request) bool { return true }
	s.melody.HandleMessage(middleware.LimitMessages(limiter, s.handleWSMessage))

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := s.melody.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.LimitHTTP(limiter))
		r.Use(chimiddleware.Timeout(RequestTimeout))
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/series", s.handleSeries)
		r.Get("/api/series/{channel}", s.handleSeriesChannel)
		r.Get("/api/ports", s.handlePorts)
		r.Post("/api/send", s.handleSend)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) env(r *http.Request, params []byte, id uuid.UUID) requests.RequestEnv {
	return requests.RequestEnv{
		Context:   r.Context(),
		Session:   s.session,
		ListPorts: s.listPorts,
		Params:    params,
		ID:        id,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *validation.Error
	switch {
	case errors.Is(err, validation.ErrMissingParams),
		errors.Is(err, validation.ErrInvalidParams),
		errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrNotConnected):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := methods.HandleStatus(s.env(r, nil, uuid.Nil))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	resp, err := methods.HandleSeries(s.env(r, nil, uuid.Nil))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSeriesChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil || ch < 0 || ch > decoder.MaxChannel {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown channel"})
		return
	}
	writeJSON(w, http.StatusOK, methods.SeriesFor(s.session.Store(), ch))
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	resp, err := methods.HandlePorts(s.env(r, nil, uuid.Nil))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body bytes.Buffer
	if _, err := body.ReadFrom(http.MaxBytesReader(w, r.Body, 64<<10)); err != nil {
		writeError(w, fmt.Errorf("%w: %w", validation.ErrInvalidParams, err))
		return
	}
	resp, err := methods.HandleSend(s.env(r, body.Bytes(), uuid.Nil))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func sendResponse(session *melody.Session, id uuid.UUID, result any) error {
	data, err := json.Marshal(models.ResponseObject{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
	if err != nil {
		return fmt.Errorf("error marshalling response: %w", err)
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func sendError(session *melody.Session, id uuid.UUID, errObj models.ErrorObject) error {
	log.Debug().Int("code", errObj.Code).Str("message", errObj.Message).Msg("sending error")

	data, err := json.Marshal(models.ResponseErrorObject{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &errObj,
	})
	if err != nil {
		return fmt.Errorf("error marshalling error response: %w", err)
	}
	if err := session.Write(data); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func errorObject(err error) models.ErrorObject {
	var verr *validation.Error
	if errors.Is(err, validation.ErrMissingParams) ||
		errors.Is(err, validation.ErrInvalidParams) ||
		errors.As(err, &verr) {
		obj := JSONRPCErrorInvalidParams
		obj.Message = err.Error()
		return obj
	}
	obj := JSONRPCErrorServerError
	obj.Message = err.Error()
	return obj
}

func (s *Server) handleWSMessage(sess *melody.Session, msg []byte) {
	// plain text heartbeat
	if bytes.Equal(msg, []byte("ping")) {
		if err := sess.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}

	if !json.Valid(msg) {
		if err := sendError(sess, uuid.Nil, JSONRPCErrorParseError); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	var req models.RequestObject
	if err := json.Unmarshal(msg, &req); err != nil || req.JSONRPC != "2.0" || req.Method == "" {
		if err := sendError(sess, uuid.Nil, JSONRPCErrorInvalidRequest); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}
	if req.ID == nil {
		log.Debug().Str("method", req.Method).Msg("ignoring client notification")
		return
	}

	fn, ok := methodMap[strings.ToLower(req.Method)]
	if !ok {
		if err := sendError(sess, *req.ID, JSONRPCErrorMethodNotFound); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}

	resp, err := fn(s.env(sess.Request, req.Params, *req.ID))
	if err != nil {
		log.Warn().Err(err).Str("method", req.Method).Msg("request failed")
		if err := sendError(sess, *req.ID, errorObject(err)); err != nil {
			log.Error().Err(err).Msg("error sending error response")
		}
		return
	}
	if err := sendResponse(sess, *req.ID, resp); err != nil {
		log.Error().Err(err).Msg("error sending response")
	}
}

// Broadcast pushes notifications to every websocket client until ctx is
// done or the channel closes.
func (s *Server) Broadcast(ctx context.Context, notifs <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifs:
			if !ok {
				return
			}
			data, err := json.Marshal(models.NotificationObject{
				JSONRPC: "2.0",
				Method:  notif.Method,
				Params:  notif.Params,
			})
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification")
				continue
			}
			if err := s.melody.Broadcast(data); err != nil {
				log.Debug().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// Start serves on listen until ctx is cancelled.
func (s *Server) Start(ctx context.Context, listen string) error {
	s.limiter.RunPruner(ctx)

	if s.broker != nil {
		notifs, id := s.broker.Subscribe(notificationQueue)
		defer s.broker.Unsubscribe(id)
		go s.Broadcast(ctx, notifs)
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", listen).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.melody.Close(); err != nil {
		log.Debug().Err(err).Msg("closing websocket sessions")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
