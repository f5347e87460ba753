package lqe

import (
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func beliefGen() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(0, 1e3),
	).Map(func(vals []interface{}) Belief {
		return Belief{Estimate: vals[0].(float64), Variance: vals[1].(float64)}
	})
}

func TestBeliefProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	measurement := gen.Float64Range(-1e6, 1e6)
	variance := gen.Float64Range(1e-3, 1e3)

	properties.Property("evolve is additive", prop.ForAll(
		func(b Belief, m, v float64) string {
			gm, gv := b.Evolve(m, v)
			if gm != b.Estimate+m || gv != b.Variance+v {
				return fmt.Sprintf("Evolve(%v, %v) on %v = (%v, %v)", m, v, b, gm, gv)
			}
			return ""
		},
		beliefGen(), measurement, variance,
	))

	properties.Property("result is the identity projection", prop.ForAll(
		func(b Belief) bool {
			m, v := b.Result()
			return m == b.Estimate && v == b.Variance
		},
		beliefGen(),
	))

	properties.Property("fuse with a positive variance is finite", prop.ForAll(
		func(b Belief, m, v float64) string {
			gm, gv := b.Fuse(m, v)
			if math.IsNaN(gm) || math.IsInf(gm, 0) || math.IsNaN(gv) || math.IsInf(gv, 0) {
				return fmt.Sprintf("Fuse(%v, %v) on %v = (%v, %v)", m, v, b, gm, gv)
			}
			return ""
		},
		beliefGen(), measurement, variance,
	))

	properties.Property("step is deterministic", prop.ForAll(
		func(b Belief, m, v float64) bool {
			x := b.Step(m, v)
			y := b.Step(m, v)
			return math.Float64bits(x.Estimate) == math.Float64bits(y.Estimate) &&
				math.Float64bits(x.Variance) == math.Float64bits(y.Variance)
		},
		beliefGen(), measurement, variance,
	))

	properties.Property("step leaves the receiver untouched", prop.ForAll(
		func(b Belief, m, v float64) bool {
			before := b
			_ = b.Step(m, v)
			em, ev := b.Result()
			return em == before.Estimate && ev == before.Variance
		},
		beliefGen(), measurement, variance,
	))

	properties.Property("run folds step", prop.ForAll(
		func(b Belief, m1, v1, m2, v2 float64) bool {
			return Run(b, Observation{m1, v1}, Observation{m2, v2}) == b.Step(m1, v1).Step(m2, v2)
		},
		beliefGen(), measurement, variance, measurement, variance,
	))

	properties.TestingRun(t)
}
