package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
)

const (
	userHeader    = "X-User-ID"
	defaultUserID = "default_user"
	maxBodyBytes  = 1 << 20
)

func userID(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get(userHeader)); u != "" {
		return u
	}
	return defaultUserID
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps engine errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var ve validator.ValidationErrors
	var oe *domain.OrderError
	switch {
	case domain.IsConfigError(err), errors.As(err, &ve), errors.Is(err, domain.ErrUnknownBotType), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrBotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateBot):
		status = http.StatusConflict
	case errors.As(err, &oe):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}

	body := map[string]interface{}{"error": err.Error()}
	if oe != nil {
		body["transient"] = oe.Transient
	}
	s.writeJSON(w, status, body)
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return s.validate.Struct(v)
}

// number accepts JSON numbers as well as numeric strings. "NaN" and
// "Inf" parse as floats and are rejected here.
func number(field string, v interface{}) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &domain.ConfigError{Field: field, Reason: "must be a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &domain.ConfigError{Field: field, Reason: "must be a finite number"}
	}
	return f, nil
}

// optionalNumber returns nil for a missing or empty value.
func optionalNumber(field string, v interface{}) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := number(field, v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func optionalInt(field string, v interface{}) (*int, error) {
	if v == nil {
		return nil, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return nil, &domain.ConfigError{Field: field, Reason: "must be an integer"}
	}
	return &n, nil
}
