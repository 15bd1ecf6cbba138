package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/unitherm/unitherm/internal/ports"
	"github.com/unitherm/unitherm/internal/thermostat"
)

type Server struct {
	svc      ports.ThermostatService
	srv      *http.Server
	deviceID string
}

// New returns a runnable server.
func New(svc ports.ThermostatService, addr string, deviceID string) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc, deviceID: deviceID}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)

	// Write: one endpoint per variable
	mux.HandleFunc("POST /v1/hvac_mode", s.handlePostHVACMode)
	mux.HandleFunc("POST /v1/preset", s.handlePostPreset)
	mux.HandleFunc("POST /v1/target_temp", s.handlePostTargetTemp)
	mux.HandleFunc("POST /v1/target_temp_low", s.handlePostTargetTempLow)
	mux.HandleFunc("POST /v1/target_temp_high", s.handlePostTargetTempHigh)
	mux.HandleFunc("POST /v1/min_temp", s.handlePostMinTemp)
	mux.HandleFunc("POST /v1/max_temp", s.handlePostMaxTemp)
	mux.HandleFunc("POST /v1/current_temperature", s.handlePostCurrentTemp)

	// Per-controller runtime tuning
	mux.HandleFunc("POST /v1/controllers/{name}/gains", s.handlePostGains)
	mux.HandleFunc("POST /v1/controllers/{name}/tolerances", s.handlePostTolerances)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type controllerDTO struct {
	Name    string  `json:"name"`
	Role    string  `json:"role"`
	Running bool    `json:"running"`
	Target  float64 `json:"target"`
	Stale   bool    `json:"stale,omitempty"`
}

type snapshotDTO struct {
	DeviceID       string          `json:"device_id"`
	HVACMode       string          `json:"hvac_mode"`
	Preset         string          `json:"preset,omitempty"`
	TargetTemp     float64         `json:"target_temp"`
	TargetTempLow  float64         `json:"target_temp_low"`
	TargetTempHigh float64         `json:"target_temp_high"`
	MinTemp        float64         `json:"min_temp"`
	MaxTemp        float64         `json:"max_temp"`
	CurrentTemp    *float64        `json:"current_temperature,omitempty"`
	Controllers    []controllerDTO `json:"controllers"`
}

func toDTO(s thermostat.Snapshot) snapshotDTO {
	dto := snapshotDTO{
		HVACMode:       s.HVACMode.String(),
		Preset:         s.Preset,
		TargetTemp:     s.TargetTemp,
		TargetTempLow:  s.TargetTempLow,
		TargetTempHigh: s.TargetTempHigh,
		MinTemp:        s.MinTemp,
		MaxTemp:        s.MaxTemp,
	}
	if s.HasCurrentTemp {
		cur := s.CurrentTemp
		dto.CurrentTemp = &cur
	}
	for _, c := range s.Controllers {
		dto.Controllers = append(dto.Controllers, controllerDTO{
			Name:    c.Name,
			Role:    c.Role.String(),
			Running: c.Running,
			Target:  c.Target,
			Stale:   c.Stale,
		})
	}
	return dto
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handlePostHVACMode(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "heat_cool"}
	postValue(s, w, r, func(v string) error {
		m, err := thermostat.ParseHVACMode(v)
		if err != nil {
			return err
		}
		return s.svc.SetHVACMode(m)
	})
}

func (s *Server) handlePostPreset(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "away"}, empty string clears
	postValue(s, w, r, func(v string) error {
		return s.svc.SetPreset(v)
	})
}

func (s *Server) handlePostTargetTemp(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetTargetTemp(v)
	})
}

func (s *Server) handlePostTargetTempLow(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		cur := s.svc.Get()
		return s.svc.SetTargetTempRange(v, cur.TargetTempHigh)
	})
}

func (s *Server) handlePostTargetTempHigh(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		cur := s.svc.Get()
		return s.svc.SetTargetTempRange(cur.TargetTempLow, v)
	})
}

func (s *Server) handlePostMinTemp(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		cur := s.svc.Get()
		return s.svc.SetMinMax(v, cur.MaxTemp)
	})
}

func (s *Server) handlePostMaxTemp(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		cur := s.svc.Get()
		return s.svc.SetMinMax(cur.MinTemp, v)
	})
}

func (s *Server) handlePostCurrentTemp(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.UpdateCurrentTemp(v, time.Now())
	})
}

func (s *Server) handlePostGains(w http.ResponseWriter, r *http.Request) {
	// body: {"kp": 20, "ki": 0.02, "kd": 0}
	name := r.PathValue("name")
	var req struct {
		Kp *float64 `json:"kp"`
		Ki *float64 `json:"ki"`
		Kd *float64 `json:"kd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Kp == nil || req.Ki == nil || req.Kd == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'kp', 'ki' or 'kd'")
		return
	}
	if err := s.svc.SetControllerGains(name, *req.Kp, *req.Ki, *req.Kd); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondSnapshot(w)
}

func (s *Server) handlePostTolerances(w http.ResponseWriter, r *http.Request) {
	// body: {"cold": 0.3, "hot": 0.3}
	name := r.PathValue("name")
	var req struct {
		Cold *float64 `json:"cold"`
		Hot  *float64 `json:"hot"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Cold == nil || req.Hot == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'cold' or 'hot'")
		return
	}
	if err := s.svc.SetControllerTolerances(name, *req.Cold, *req.Hot); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondSnapshot(w)
}

// ---- generic helpers ----

func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
