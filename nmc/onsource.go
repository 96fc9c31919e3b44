package nmc

import (
	"context"
	"time"

	"github.com/w1xm/nmc_interface/antenna"
)

func (c *Client) sample(ctx context.Context) (antenna.Sample, error) {
	p, err := c.Get(ctx, antenna.SampleParams...)
	if err != nil {
		return antenna.Sample{}, err
	}
	var s antenna.Sample
	if err := floats(p, "Onsource", map[string]*float64{
		"AzimuthTrackingError":    &s.AzTrackErr,
		"AzimuthAngle":            &s.Az,
		"AzimuthPredictedAngle":   &s.AzPred,
		"ElevationTrackingError":  &s.ElTrackErr,
		"ElevationAngle":          &s.El,
		"ElevationPredictedAngle": &s.ElPred,
	}); err != nil {
		return antenna.Sample{}, err
	}
	s.Status = p["Status"].Raw
	return s, nil
}

// Onsource samples the pointing monitor twice, SettleDelay apart, and
// classifies the result. The classification is stored in the status.
// Only the calling goroutine waits out the settle delay.
func (c *Client) Onsource(ctx context.Context) (antenna.PointStatus, error) {
	if c.Simulated() {
		c.setPointStatus(antenna.Onsource)
		return antenna.Onsource, nil
	}
	before, err := c.sample(ctx)
	if err != nil {
		return antenna.Unknown, err
	}
	c.logger.Debugf("onsource params before: %+v", before)

	t := time.NewTimer(c.cfg.SettleDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return antenna.Unknown, ctx.Err()
	case <-t.C:
	}

	after, err := c.sample(ctx)
	if err != nil {
		return antenna.Unknown, err
	}
	c.logger.Debugf("onsource params after: %+v", after)

	tol := c.GetStatus().Angle.Tolerances
	ps := antenna.Evaluate(before, after, tol)
	c.logger.Debugf("onsource: %v", ps)
	c.UpdateStatus(func(s *antenna.Status) {
		s.PointStatus = ps
		s.AntennaStatus = before.Status
		s.Angle.Az = after.Az
		s.Angle.El = after.El
	})
	return ps, nil
}

func (c *Client) setPointStatus(ps antenna.PointStatus) {
	c.UpdateStatus(func(s *antenna.Status) {
		s.PointStatus = ps
	})
}
