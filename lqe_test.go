package lqe

import (
	"math"
	"testing"
)

func TestFuse(t *testing.T) {
	b := Belief{Estimate: 7.0, Variance: 2.0}

	m, v := b.Fuse(10.0, 2.0)
	if m != 8.5 || v != 5.0 {
		t.Errorf("Fuse = (%v, %v), want (8.5, 5)", m, v)
	}
}

func TestFuse_KeepsMeasurementScaledVariance(t *testing.T) {
	// variance follows b.Variance*measurement/(b.Variance+variance)
	b := Belief{Estimate: 1.0, Variance: 4.0}

	_, v := b.Fuse(3.0, 2.0)
	if v != 2.0 {
		t.Errorf("variance = %v, want 2", v)
	}

	// a negative measurement drives the variance negative
	_, v = b.Fuse(-3.0, 2.0)
	if v != -2.0 {
		t.Errorf("variance = %v, want -2", v)
	}
}

func TestFuse_ZeroVariances(t *testing.T) {
	b := Belief{Estimate: 1.0, Variance: 0}

	m, v := b.Fuse(2.0, 0)
	if !math.IsNaN(m) {
		t.Errorf("estimate = %v, want NaN", m)
	}
	if !math.IsNaN(v) {
		t.Errorf("variance = %v, want NaN", v)
	}
}

func TestFuse_WeightsLowerVarianceInput(t *testing.T) {
	b := Belief{Estimate: 0, Variance: 1}

	m, _ := b.Fuse(10, 9)
	if m != 1 {
		t.Errorf("estimate = %v, want 1", m)
	}
}

func TestEvolve(t *testing.T) {
	b := Belief{Estimate: 7.0, Variance: 2.0}

	m, v := b.Evolve(10.0, 2.0)
	if m != 17.0 || v != 4.0 {
		t.Errorf("Evolve = (%v, %v), want (17, 4)", m, v)
	}
}

func TestResult(t *testing.T) {
	b := Belief{Estimate: 3.0, Variance: 2.0}

	m, v := b.Result()
	if m != 3.0 || v != 2.0 {
		t.Errorf("Result = (%v, %v), want (3, 2)", m, v)
	}
}

func TestStep(t *testing.T) {
	b := Belief{Estimate: 3.0, Variance: 2.0}

	m, v := b.Step(5.0, 3.0).Result()
	if m != 6.125 || v != 3.0 {
		t.Errorf("Step = (%v, %v), want (6.125, 3)", m, v)
	}

	m, v = b.Step(5.0, 3.0).Step(7.0, 1.0).Result()
	if m != 8.225 || v != 2.625 {
		t.Errorf("Step.Step = (%v, %v), want (8.225, 2.625)", m, v)
	}
}

func TestStep_DoesNotMutateReceiver(t *testing.T) {
	b := New(3.0, 2.0)

	_ = b.Step(5.0, 3.0)
	fork := b.Step(100.0, 0.5)

	if m, v := b.Result(); m != 3.0 || v != 2.0 {
		t.Fatalf("receiver changed to (%v, %v)", m, v)
	}
	if fork == b.Step(5.0, 3.0) {
		t.Error("forks from the same belief should diverge")
	}
}

func TestRun(t *testing.T) {
	b := New(3.0, 2.0)

	got := Run(b, Observation{5.0, 3.0}, Observation{7.0, 1.0})
	if got.Estimate != 8.225 || got.Variance != 2.625 {
		t.Errorf("Run = %v, want (8.225, 2.625)", got)
	}

	if Run(b) != b {
		t.Errorf("Run with no observations = %v, want %v", Run(b), b)
	}
}

func TestTrajectory(t *testing.T) {
	b := New(3.0, 2.0)

	traj := Trajectory(b, Observation{5.0, 3.0}, Observation{7.0, 1.0})
	if len(traj) != 2 {
		t.Fatalf("len = %d, want 2", len(traj))
	}
	if traj[0] != (Belief{6.125, 3.0}) {
		t.Errorf("traj[0] = %v, want (6.125, 3)", traj[0])
	}
	if traj[1] != (Belief{8.225, 2.625}) {
		t.Errorf("traj[1] = %v, want (8.225, 2.625)", traj[1])
	}

	if got := Trajectory(b); len(got) != 0 {
		t.Errorf("empty trajectory has %d entries", len(got))
	}
}

func TestString(t *testing.T) {
	if got := New(8.225, 2.625).String(); got != "(8.225, 2.625)" {
		t.Errorf("String = %q", got)
	}
	if got := New(math.NaN(), math.Inf(1)).String(); got != "(NaN, +Inf)" {
		t.Errorf("String = %q", got)
	}
}

func TestInvalidInputsPropagate(t *testing.T) {
	b := New(1.0, 1.0)

	m, v := b.Evolve(math.NaN(), -2.0)
	if !math.IsNaN(m) {
		t.Errorf("estimate = %v, want NaN", m)
	}
	if v != -1.0 {
		t.Errorf("variance = %v, want -1", v)
	}

	got := b.Step(math.Inf(1), 1.0)
	if !math.IsNaN(got.Estimate) && !math.IsInf(got.Estimate, 0) {
		t.Errorf("estimate = %v, want NaN or Inf", got.Estimate)
	}
}
