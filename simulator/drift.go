// Copyright 2026 KB-perByte
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package simulator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/KB-perByte/gobacnet/bacnet"
)

// driftPoint is one sensor that wanders around its configured baseline.
type driftPoint struct {
	object   bacnet.ObjectIdentifier
	baseline float64
	span     float64
}

func (s *Simulator) driftPoints() []driftPoint {
	var points []driftPoint
	for _, oc := range s.cfg.Objects {
		if !oc.Drift {
			continue
		}
		t, _ := bacnet.ParseObjectType(oc.Type)
		span := oc.Value * s.cfg.Drift.Jitter
		if span == 0 {
			span = s.cfg.Drift.Jitter
		}
		points = append(points, driftPoint{
			object:   bacnet.ObjectIdentifier{Type: t, Instance: oc.Instance},
			baseline: oc.Value,
			span:     span,
		})
	}
	return points
}

// driftLoop nudges each drifting point toward a jittered target every
// interval. The walk stays within the configured jitter band around the
// baseline so values look alive without running away.
func (s *Simulator) driftLoop(ctx context.Context) {
	points := s.driftPoints()
	if len(points) == 0 {
		return
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(s.cfg.Drift.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range points {
				s.driftStep(rng, p)
			}
		}
	}
}

func (s *Simulator) driftStep(rng *rand.Rand, p driftPoint) {
	obj, ok := s.device.Object(p.object)
	if !ok {
		return
	}
	cur, ok := obj.PresentValue().Float()
	if !ok {
		return
	}

	// Step a random fraction of the span, pulled back toward baseline when
	// the walk strays past it.
	step := (rng.Float64()*2 - 1) * p.span * 0.25
	next := cur + step
	if next > p.baseline+p.span {
		next = p.baseline + p.span
	}
	if next < p.baseline-p.span {
		next = p.baseline - p.span
	}

	if err := obj.SetPresentValue(bacnet.Real(float32(next))); err != nil {
		s.logger.Debug("drift update failed",
			slog.String("object", p.object.String()),
			slog.String("error", err.Error()),
		)
	}
}
