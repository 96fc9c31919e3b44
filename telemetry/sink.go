// Package telemetry records antenna monitor samples to a sink.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sample is one set of monitor values taken at Time.
type Sample struct {
	Time   time.Time              `json:"time"`
	Fields map[string]interface{} `json:"fields"`
}

// Sink persists samples.
type Sink interface {
	Push(ctx context.Context, s Sample) error
}

// MemorySink keeps the most recent samples in memory.
type MemorySink struct {
	Max int

	mu      sync.Mutex
	samples []Sample
}

func (m *MemorySink) Push(_ context.Context, s Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	if m.Max > 0 && len(m.samples) > m.Max {
		m.samples = m.samples[len(m.samples)-m.Max:]
	}
	return nil
}

func (m *MemorySink) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.samples...)
}

// Flatten copies a decoded JSON document into fields, naming nested
// values by their dotted path.
func Flatten(fields map[string]interface{}, doc interface{}, prefix string) {
	switch doc := doc.(type) {
	case map[string]interface{}:
		for k, v := range doc {
			Flatten(fields, v, join(prefix, k))
		}
	case []interface{}:
		for k, v := range doc {
			Flatten(fields, v, join(prefix, fmt.Sprint(k)))
		}
	case nil:
	default:
		fields[prefix] = doc
	}
}

func join(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}
