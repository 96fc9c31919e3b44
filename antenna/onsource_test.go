package antenna

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOperational(t *testing.T) {
	for _, test := range []struct {
		status string
		want   bool
	}{
		{"operational", true},
		{"OPERATIONAL", true},
		{"marginal: az encoder", true},
		{"critical", false},
		{"Critical fault", false},
		{"marginal but critical", true},
		{"", true},
		{"unknown", true},
	} {
		if got := Operational(test.status); got != test.want {
			t.Errorf("Operational(%q) = %v, want %v", test.status, got, test.want)
		}
	}
}

func TestCrossElevation(t *testing.T) {
	if got := CrossElevation(10, 60); math.Abs(got-5) > 1e-9 {
		t.Errorf("CrossElevation(10, 60) = %v, want 5", got)
	}
	if got := CrossElevation(10, 0); got != 10 {
		t.Errorf("CrossElevation(10, 0) = %v, want 10", got)
	}
}

func TestEvaluate(t *testing.T) {
	steady := Sample{Az: 120, AzPred: 120.01, El: 45, ElPred: 45.01, Status: "operational"}
	moved := steady
	moved.Az += 1
	moved.El += 1
	critical := steady
	critical.Status = "critical"

	for _, test := range []struct {
		name          string
		before, after Sample
		want          PointStatus
	}{
		{"all deltas within tolerance", steady, steady, Onsource},
		{"moving while operational", steady, moved, Slewing},
		{"moving while critical", critical, moved, Error},
		{"critical but settled", critical, critical, Onsource},
		{"tracking error too large", steady, func() Sample { s := steady; s.ElTrackErr = 0.1; return s }(), Slewing},
		{"xel tracking error too large", steady, func() Sample { s := steady; s.AzTrackErr = 0.2; return s }(), Slewing},
		{"predicted far from actual", steady, func() Sample { s := steady; s.ElPred = 45.2; return s }(), Slewing},
		{"unknown status defaults operational", Sample{Status: "??"}, Sample{El: 3}, Slewing},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := Evaluate(test.before, test.after, DefaultTolerances); got != test.want {
				t.Errorf("Evaluate() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestEvaluateBoundaryIsExclusive(t *testing.T) {
	tol := Tolerances{AzTol: 1, ElTol: 1, AzPredTol: 1, ElPredTol: 1}
	before := Sample{Status: "operational"}
	after := Sample{El: 1, ElPred: 1}
	if got := Evaluate(before, after, tol); got != Slewing {
		t.Errorf("el delta equal to tolerance: got %v, want SLEWING", got)
	}
}

func TestStatusJSON(t *testing.T) {
	s := NewStatus()
	s.PointStatus = Onsource
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"antenna_status": "",
		"point_status":   "ONSOURCE",
		"angle": map[string]interface{}{
			"az": 0.0, "el": 0.0,
			"az_tol": 0.085, "el_tol": 0.085,
			"az_pred_tol": 0.11, "el_pred_tol": 0.11,
		},
		"offset":      map[string]interface{}{"el": 0.0, "xel": 0.0},
		"offset_rate": map[string]interface{}{"el": 0.0, "xel": 0.0},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected JSON: got(-)/want(+):\n%s", diff)
	}

	var back Status
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.PointStatus != Onsource {
		t.Errorf("point_status round trip: got %v", back.PointStatus)
	}
}
