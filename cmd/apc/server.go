package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/w1xm/nmc_interface/antenna"
	"github.com/w1xm/nmc_interface/nmc"
	"github.com/w1xm/nmc_interface/telemetry"
)

// Status is what the status endpoints and the websocket feed publish.
type Status struct {
	antenna.Status
	Simulated bool             `json:"simulated"`
	WSN       int              `json:"wsn"`
	Site      string           `json:"site"`
	DSS       int              `json:"dss"`
	Recording bool             `json:"recording"`
	Sample    telemetry.Sample `json:"sample"`
}

type Server struct {
	// ctx bounds work that outlives a request.
	ctx      context.Context
	client   *nmc.Client
	recorder *telemetry.Recorder
	logger   logrus.FieldLogger

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
	version    uint64
}

func NewServer(ctx context.Context, client *nmc.Client, recorder *telemetry.Recorder, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{ctx: ctx, client: client, recorder: recorder, logger: logger}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	s.publish()
	return s
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.StatusSocketHandler)
	api.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
	api.HandleFunc("/reconnect", s.handleReconnect).Methods(http.MethodPost)
	api.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	api.HandleFunc("/close", s.handleClose).Methods(http.MethodPost)
	api.HandleFunc("/command", s.handleCommand).Methods(http.MethodPost)
	api.HandleFunc("/get", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/weather", s.handleWeather).Methods(http.MethodGet)
	api.HandleFunc("/hadec", s.handleHadec).Methods(http.MethodGet)
	api.HandleFunc("/azel", s.handleAzel).Methods(http.MethodGet)
	api.HandleFunc("/offsets", s.handleOffsets).Methods(http.MethodGet)
	api.HandleFunc("/offset", s.handleSetOffset).Methods(http.MethodPost)
	api.HandleFunc("/offset/{axis}", s.handleGetOffset).Methods(http.MethodGet)
	api.HandleFunc("/onsource", s.handleOnsource).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/clr_offsets", s.handleToken((*nmc.Client).ClrOffsets)).Methods(http.MethodPost)
	api.HandleFunc("/clr_rates", s.handleToken((*nmc.Client).ClrRates)).Methods(http.MethodPost)
	api.HandleFunc("/trk", s.handleToken((*nmc.Client).Trk)).Methods(http.MethodPost)
	api.HandleFunc("/rate", s.handleRate).Methods(http.MethodPost)
	api.HandleFunc("/move", s.handleMove).Methods(http.MethodPost)
	api.HandleFunc("/feed_change", s.handleFeedChange).Methods(http.MethodPost)
	api.HandleFunc("/point_radec", s.handlePointRadec).Methods(http.MethodPost)
	api.HandleFunc("/recording/start", s.handleStartRecording).Methods(http.MethodPost)
	api.HandleFunc("/recording/stop", s.handleStopRecording).Methods(http.MethodPost)
	return r
}

// publish refreshes the published status and wakes the websocket feeds.
func (s *Server) publish() {
	st := Status{
		Status:    s.client.GetStatus(),
		Simulated: s.client.Simulated(),
		WSN:       s.client.WSN(),
		Site:      s.client.Site(),
		DSS:       s.client.DSS(),
	}
	if s.recorder != nil {
		st.Recording = s.recorder.Recording()
		st.Sample = s.recorder.Last()
	}
	s.statusCallback(st)
}

func (s *Server) statusCallback(status Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	s.version++
	s.statusCond.Broadcast()
}

// PublishLoop republishes the status every period until ctx is done.
func (s *Server) PublishLoop(ctx context.Context, period time.Duration) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.publish()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	writeJSON(w, s.logger, status)
}

// StatusSocketHandler streams every status update to the peer until it
// disconnects.
func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("upgrading: %v", err)
		return
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain incoming messages; a read error means the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.statusMu.Lock()
		s.statusCond.Broadcast()
		s.statusMu.Unlock()
	}()

	var seen uint64
	for {
		s.statusMu.RLock()
		for s.version == seen && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status := s.status
		seen = s.version
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		data, err := json.Marshal(status)
		if err != nil {
			s.logger.Errorf("encoding status: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debugf("status socket: %v", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("writing response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, nmc.ErrInvalidArgument), errors.Is(err, nmc.ErrUnsupportedAxis):
		code = http.StatusBadRequest
	case errors.Is(err, nmc.ErrNotConnected):
		code = http.StatusServiceUnavailable
	}
	s.logger.Errorf("request failed: %v", err)
	http.Error(w, err.Error(), code)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

type connectRequest struct {
	WSN  int    `json:"wsn"`
	Site string `json:"site"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	req := connectRequest{Site: s.client.Site()}
	if !decode(w, r, &req) {
		return
	}
	res := s.client.Connect(r.Context(), req.WSN, req.Site)
	s.publish()
	writeJSON(w, s.logger, res)
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	res := s.client.Reconnect(r.Context())
	s.publish()
	writeJSON(w, s.logger, res)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	res := s.client.Simulate()
	s.publish()
	writeJSON(w, s.logger, res)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Close(); err != nil {
		s.writeError(w, err)
		return
	}
	s.publish()
	writeJSON(w, s.logger, map[string]bool{"closed": true})
}

type commandRequest struct {
	Command  string `json:"command"`
	RecvSize int    `json:"recv_size"`
}

type tokenResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Command == "" {
		http.Error(w, "missing command", http.StatusBadRequest)
		return
	}
	cmd := req.Command
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	resp, err := s.client.Command(r.Context(), cmd, req.RecvSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, tokenResponse{Response: resp})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var names []string
	for _, p := range r.URL.Query()["param"] {
		names = append(names, strings.Split(p, ",")...)
	}
	params, err := s.client.Get(r.Context(), names...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, params)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	params, err := s.client.GetWeather(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, params)
}

func (s *Server) handleHadec(w http.ResponseWriter, r *http.Request) {
	h, err := s.client.GetHadec(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, h)
}

func (s *Server) handleAzel(w http.ResponseWriter, r *http.Request) {
	azel, err := s.client.GetAzel(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, azel)
}

func (s *Server) handleOffsets(w http.ResponseWriter, r *http.Request) {
	offsets, err := s.client.GetOffsets(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, offsets)
}

func (s *Server) handleGetOffset(w http.ResponseWriter, r *http.Request) {
	axis := mux.Vars(r)["axis"]
	v, err := s.client.GetOffset(r.Context(), axis)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, map[string]interface{}{"axis": strings.ToUpper(axis), "offset": v})
}

type offsetRequest struct {
	Axis1  string  `json:"axis1"`
	Axis2  string  `json:"axis2"`
	Value1 float64 `json:"value1"`
	Value2 float64 `json:"value2"`
}

func (s *Server) handleSetOffset(w http.ResponseWriter, r *http.Request) {
	req := offsetRequest{Axis1: "EL", Axis2: "XEL"}
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.client.SetOffset(r.Context(), req.Axis1, req.Axis2, req.Value1, req.Value2)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.client.UpdateStatus(func(st *antenna.Status) {
		setAxis(&st.Offset, req.Axis1, req.Value1)
		setAxis(&st.Offset, req.Axis2, req.Value2)
	})
	s.publish()
	writeJSON(w, s.logger, resp)
}

func setAxis(p *antenna.AxisPair, axis string, v float64) {
	switch strings.ToUpper(axis) {
	case "EL":
		p.El = v
	case "XEL":
		p.XEl = v
	}
}

func (s *Server) handleOnsource(w http.ResponseWriter, r *http.Request) {
	ps, err := s.client.Onsource(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.publish()
	writeJSON(w, s.logger, map[string]antenna.PointStatus{"point_status": ps})
}

func (s *Server) handleToken(fn func(*nmc.Client, context.Context) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := fn(s.client, r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, s.logger, tokenResponse{Response: resp})
	}
}

type rateRequest struct {
	Axis string  `json:"axis"`
	Rate float64 `json:"rate"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.client.SetRate(r.Context(), req.Axis, req.Rate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.client.UpdateStatus(func(st *antenna.Status) {
		setAxis(&st.OffsetRate, req.Axis, req.Rate)
	})
	s.publish()
	writeJSON(w, s.logger, tokenResponse{Response: resp})
}

type moveRequest struct {
	Axis     string  `json:"axis"`
	Position float64 `json:"position"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.client.Move(r.Context(), req.Axis, req.Position)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, tokenResponse{Response: resp})
}

type feedChangeRequest struct {
	Feed2     bool    `json:"feed2"`
	ElOffset  float64 `json:"el_offset"`
	XElOffset float64 `json:"xel_offset"`
}

func (s *Server) handleFeedChange(w http.ResponseWriter, r *http.Request) {
	var req feedChangeRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.client.FeedChange(r.Context(), req.Feed2, req.ElOffset, req.XElOffset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, resp)
}

type pointRadecRequest struct {
	RA    float64 `json:"ra"`
	Dec   float64 `json:"dec"`
	Epoch string  `json:"epoch"`
}

func (s *Server) handlePointRadec(w http.ResponseWriter, r *http.Request) {
	req := pointRadecRequest{Epoch: "J2000"}
	if !decode(w, r, &req) {
		return
	}
	resp, err := s.client.PointRadec(r.Context(), req.RA, req.Dec, req.Epoch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, s.logger, tokenResponse{Response: resp})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.Error(w, "recording not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.recorder.Start(s.ctx); err != nil {
		s.writeError(w, err)
		return
	}
	s.publish()
	writeJSON(w, s.logger, map[string]bool{"recording": true})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		http.Error(w, "recording not configured", http.StatusServiceUnavailable)
		return
	}
	s.recorder.Pause()
	s.publish()
	writeJSON(w, s.logger, map[string]bool{"recording": false})
}
