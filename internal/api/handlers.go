package api

import (
	"Go2NetProfile/internal/codec"
	"Go2NetProfile/internal/loader"
	"Go2NetProfile/internal/model"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// statsResponse mirrors model.Overview plus the run it came from.
type statsResponse struct {
	RunID       string `json:"run_id"`
	GeneratedAt string `json:"generated_at"`
	model.Overview
}

type uploadResponse struct {
	Message     string `json:"message"`
	RunID       string `json:"run_id"`
	RecordCount int    `json:"record_count"`
	Users       int    `json:"users"`
}

type tagUsers struct {
	Tag   string   `json:"tag"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if snap := s.source.Current(); snap != nil {
		resp["run_id"] = snap.RunID
		resp["users"] = len(snap.Profiles)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// statsHandler returns the network overview. Before the first run it
// returns an empty object.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Current()
	if snap == nil {
		s.writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{
		RunID:       snap.RunID,
		GeneratedAt: snap.GeneratedAt.UTC().Format(time.RFC3339),
		Overview:    snap.Overview,
	})
}

func (s *Server) profilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles := model.ProfileMap{}
	if snap := s.source.Current(); snap != nil {
		profiles = snap.Profiles
	}
	data, err := codec.Serialize(profiles)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode profiles: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	snap := s.source.Current()
	if snap == nil {
		http.Error(w, "no profiles available yet", http.StatusServiceUnavailable)
		return
	}
	profile, ok := snap.Profiles[user]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown user %q", user), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

// tagsHandler lists every tag present in the current snapshot with the users
// carrying it, ordered by tag.
func (s *Server) tagsHandler(w http.ResponseWriter, r *http.Request) {
	out := []tagUsers{}
	if snap := s.source.Current(); snap != nil {
		index := snap.Profiles.TagIndex()
		for _, tag := range sortedKeys(index) {
			out = append(out, tagUsers{Tag: tag, Count: len(index[tag]), Users: index[tag]})
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) tagHandler(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	users := []string{}
	if snap := s.source.Current(); snap != nil {
		if found := snap.Profiles.TagIndex()[tag]; found != nil {
			users = found
		}
	}
	s.writeJSON(w, http.StatusOK, tagUsers{Tag: tag, Count: len(users), Users: users})
}

// uploadHandler accepts a multipart CSV upload in the "file" field, replaces
// the data file and re-runs the analysis. Invalid content is rejected with
// 400 and the current profiles stay in place.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "upload exceeds the size limit", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, fmt.Sprintf("failed to parse upload: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		http.Error(w, "only .csv files are accepted", http.StatusBadRequest)
		return
	}

	snap, err := s.source.Upload(r.Context(), file)
	if err != nil {
		var loadErr *loader.LoadError
		if errors.As(err, &loadErr) {
			s.logger.Warn("rejected upload", zap.String("file", header.Filename), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("upload failed", zap.String("file", header.Filename), zap.Error(err))
		http.Error(w, fmt.Sprintf("failed to process upload: %v", err), http.StatusInternalServerError)
		return
	}

	s.logger.Info("upload analyzed", zap.String("file", header.Filename), zap.String("run_id", snap.RunID))
	s.writeJSON(w, http.StatusOK, uploadResponse{
		Message:     "analysis completed",
		RunID:       snap.RunID,
		RecordCount: snap.RecordCount,
		Users:       len(snap.Profiles),
	})
}

func (s *Server) historyTagsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireQuerier(w) {
		return
	}
	counts, err := s.querier.TagCounts(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query tag counts: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *Server) historyTagUsersHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireQuerier(w) {
		return
	}
	tag := mux.Vars(r)["tag"]
	users, err := s.querier.UsersWithTag(r.Context(), tag)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query users: %v", err), http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []string{}
	}
	s.writeJSON(w, http.StatusOK, tagUsers{Tag: tag, Count: len(users), Users: users})
}

func (s *Server) historyUserHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireQuerier(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	history, err := s.querier.UserHistory(r.Context(), mux.Vars(r)["user"], limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query history: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) requireQuerier(w http.ResponseWriter) bool {
	if s.querier == nil {
		http.Error(w, "no history store configured", http.StatusNotImplemented)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
