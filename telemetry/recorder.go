package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/w1xm/nmc_interface/nmc"
	"github.com/w1xm/nmc_interface/worker"
)

const DefaultInterval = 2 * time.Second

// DefaultItems are the monitor items recorded when none are configured.
var DefaultItems = []string{
	"AzimuthAngle",
	"ElevationAngle",
	"AzimuthPredictedAngle",
	"ElevationPositionOffset",
	"humidity",
	"pressure",
	"temperature",
	"windspeed",
	"winddirection",
	"precipitation",
	"total_precipitation",
}

// Source reads monitor items. *nmc.Client satisfies it.
type Source interface {
	Get(ctx context.Context, names ...string) (nmc.Params, error)
}

type RecorderConfig struct {
	Interval time.Duration
	Items    []string
	Now      func() time.Time
	Logger   logrus.FieldLogger
}

// Recorder periodically samples a Source into a Sink.
type Recorder struct {
	src    Source
	sink   Sink
	cfg    RecorderConfig
	logger logrus.FieldLogger

	mu     sync.Mutex
	worker *worker.Worker
	last   Sample
}

func NewRecorder(src Source, sink Sink, cfg RecorderConfig) *Recorder {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if len(cfg.Items) == 0 {
		cfg.Items = DefaultItems
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Recorder{
		src:    src,
		sink:   sink,
		cfg:    cfg,
		logger: cfg.Logger.WithField("component", "recorder"),
	}
}

// Start begins recording, or resumes a paused recorder.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker != nil && r.worker.Running() {
		r.worker.Resume()
		return nil
	}
	r.worker = worker.New("recorder", r.cfg.Interval, r.tick, r.logger)
	return r.worker.Start(ctx)
}

// Pause stops sampling without ending the worker.
func (r *Recorder) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker != nil {
		r.worker.Pause()
	}
}

// Recording reports whether samples are being taken.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.worker != nil && r.worker.Running() && !r.worker.Paused()
}

// Stop ends the worker and waits for it.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	w := r.worker
	r.worker = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// Last returns the most recent sample.
func (r *Recorder) Last() Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) tick(ctx context.Context) error {
	s, err := r.Sample(ctx)
	if err != nil {
		r.logger.Errorf("sampling: %v", err)
		return nil
	}
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
	if err := r.sink.Push(ctx, s); err != nil {
		r.logger.Errorf("pushing sample: %v", err)
	}
	return nil
}

// Sample reads the configured items once. Items without a numeric value
// are left out.
func (r *Recorder) Sample(ctx context.Context) (Sample, error) {
	params, err := r.src.Get(ctx, r.cfg.Items...)
	if err != nil {
		return Sample{}, err
	}
	now := r.cfg.Now()
	fields := make(map[string]interface{}, len(params)+1)
	for _, name := range r.cfg.Items {
		f, err := params[name].Float()
		if err != nil {
			r.logger.Debugf("skipping %s: %v", name, err)
			continue
		}
		fields[name] = f
	}
	fields["timestamp"] = float64(now.UnixNano()) / 1e9
	return Sample{Time: now, Fields: fields}, nil
}
