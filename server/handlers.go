package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/RyanBlaney/sonido-markers/analyzer"
	"github.com/RyanBlaney/sonido-markers/failure"
	"github.com/RyanBlaney/sonido-markers/logging"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, healthMessage)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context()).WithFields(logging.Fields{
		"component": "http_server",
		"function":  "handleAnalyze",
	})

	req, err := s.parseRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	result, err := s.analyzer.Analyze(ctx, *req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.Debug("Analysis returned", logging.Fields{"key": result.Key})
	writeJSON(w, http.StatusOK, result)
}

// parseRequest reads the audio from the multipart "file" field or the "url"
// query parameter, plus mode, language and algorithm overrides
func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request) (*analyzer.Request, error) {
	query := r.URL.Query()

	modeValue := query.Get("mode")
	if modeValue == "" {
		modeValue = s.config.DefaultMode
	}
	mode, err := analyzer.ParseMode(modeValue)
	if err != nil {
		return nil, err
	}

	params, err := s.parseParams(query)
	if err != nil {
		return nil, err
	}

	language := query.Get("language")
	if language == "" {
		language = "en"
	}

	audio, err := s.readUpload(w, r)
	if err != nil {
		return nil, err
	}
	if audio == nil {
		source := query.Get("url")
		if source == "" {
			return nil, failure.Newf(failure.InvalidRequest, "analyze", "Provide file or url")
		}
		audio, err = s.fetch(r.Context(), source)
		if err != nil {
			return nil, err
		}
	}

	return &analyzer.Request{
		Audio:    audio,
		Mode:     mode,
		Params:   params,
		Language: language,
	}, nil
}

func (s *Server) parseParams(query url.Values) (analyzer.Params, error) {
	params := s.params

	floatParams := map[string]*float64{
		"threshold":    &params.OnsetThreshold,
		"merge_window": &params.MergeWindow,
		"frame_rate":   &params.FrameRate,
	}
	for name, dst := range floatParams {
		value := query.Get(name)
		if value == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return params, failure.Newf(failure.InvalidRequest, "params", "invalid %s %q", name, value)
		}
		*dst = parsed
	}

	if value := query.Get("max_beats"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return params, failure.Newf(failure.InvalidRequest, "params", "invalid max_beats %q", value)
		}
		params.MaxBeats = parsed
	}

	return params, params.Validate()
}

// readUpload returns nil, nil when the request carries no "file" part
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		// not multipart: a url-only request with an irrelevant body
		return nil, nil
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, uploadError(err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, uploadError(err)
		}
		return data, nil
	}
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return failure.Newf(failure.InvalidRequest, "upload", "upload exceeds %d bytes", tooLarge.Limit)
	}
	return failure.New(failure.InvalidRequest, "upload", err)
}

// fetch downloads an http(s) URL, capped at MaxUploadBytes
func (s *Server) fetch(ctx context.Context, source string) ([]byte, error) {
	parsed, err := url.Parse(source)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, failure.Newf(failure.InvalidRequest, "fetch", "url must be an absolute http(s) URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, failure.New(failure.InvalidRequest, "fetch", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.New(failure.InvalidRequest, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, failure.Newf(failure.InvalidRequest, "fetch", "url returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxUploadBytes+1))
	if err != nil {
		return nil, failure.New(failure.InvalidRequest, "fetch", err)
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return nil, failure.Newf(failure.InvalidRequest, "fetch", "download exceeds %d bytes", s.config.MaxUploadBytes)
	}

	return data, nil
}

// statusFor maps error kinds onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	}

	switch failure.KindOf(err) {
	case failure.InvalidRequest:
		return http.StatusBadRequest
	case failure.Decode, failure.Analysis:
		return http.StatusUnprocessableEntity
	case failure.TranscriptionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	logger := logging.WithContext(r.Context()).WithFields(logging.Fields{
		"component": "http_server",
		"status":    status,
	})
	if status >= http.StatusInternalServerError {
		logger.Error(err, "Analyze request failed")
	} else {
		logger.Warn("Analyze request rejected", logging.Fields{"error": err.Error()})
	}

	resp := errorResponse{Error: err.Error()}
	if kind := failure.KindOf(err); kind != failure.Unknown {
		resp.Kind = kind.String()
	}
	if status == http.StatusInternalServerError {
		resp.Error = fmt.Sprintf("internal error: %v", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
