/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package server exposes the optimization pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/sql-optimizer/internal/metadata"
	"github.com/GoogleCloudPlatform/sql-optimizer/internal/optimizer"
)

// Optimizer is the server's view of the pipeline.
type Optimizer interface {
	Optimize(ctx context.Context, sqlText string) optimizer.Outcome
}

var _ Optimizer = (*optimizer.Service)(nil)

type Server struct {
	svc    Optimizer
	logger *zap.Logger
}

func New(svc Optimizer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger.Named("server")}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Post("/optimize", s.handleOptimize)
	return r
}

// ListenAndServe blocks serving the router until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}

type optimizeRequest struct {
	SQL string `json:"sql"`
}

type explainPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Text  string `json:"text"`
}

type llmPayload struct {
	Risk        string   `json:"risk"`
	Changes     []string `json:"changes"`
	Assumptions []string `json:"assumptions"`
}

type tablePayload struct {
	Table               string                `json:"table"`
	PartitionCandidates []string              `json:"partition_candidates"`
	Columns             []metadata.ColumnInfo `json:"columns"`
}

type optimizeResponse struct {
	OK            bool            `json:"ok"`
	Attempts      int             `json:"attempts"`
	Tables        []string        `json:"tables"`
	LLM           llmPayload      `json:"llm"`
	OriginalSQL   string          `json:"original_sql"`
	OptimizedSQL  string          `json:"optimized_sql"`
	Diff          string          `json:"diff"`
	ExplainBefore explainPayload  `json:"explain_before"`
	ExplainAfter  *explainPayload `json:"explain_after"`
	Metadata      []tablePayload  `json:"metadata"`
	Error         string          `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sql is required"})
		return
	}

	out := s.svc.Optimize(r.Context(), req.SQL)
	s.logger.Info("optimize request",
		zap.Bool("ok", out.OK),
		zap.Int("attempts", out.Attempts),
		zap.Int("tables", len(out.Tables)))

	writeJSON(w, http.StatusOK, toResponse(out))
}

func toResponse(out optimizer.Outcome) optimizeResponse {
	resp := optimizeResponse{
		OK:           out.OK,
		Attempts:     out.Attempts,
		Tables:       out.Tables,
		OriginalSQL:  out.OriginalSQL,
		OptimizedSQL: out.OptimizedSQL,
		Diff:         out.Diff,
		LLM: llmPayload{
			Risk:        out.Risk,
			Changes:     out.Changes,
			Assumptions: out.Assumptions,
		},
		ExplainBefore: explainPayload{
			OK:    out.ExplainBefore.OK,
			Error: out.ExplainBefore.Error,
			Text:  out.ExplainBefore.Text,
		},
		Error: out.Error,
	}
	if out.ExplainAfter != nil {
		resp.ExplainAfter = &explainPayload{
			OK:    out.ExplainAfter.OK,
			Error: out.ExplainAfter.Error,
			Text:  out.ExplainAfter.Text,
		}
	}
	resp.Metadata = make([]tablePayload, 0, len(out.Metadata))
	for _, tm := range out.Metadata {
		resp.Metadata = append(resp.Metadata, tablePayload{
			Table:               tm.Table.FQTN(),
			PartitionCandidates: tm.PartitionCandidates,
			Columns:             tm.Columns,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}
