package pool

import "testing"

func TestBootstrapMinimumOfAllMembers(t *testing.T) {
	pool, guard := Bootstrap([]Member{
		{Available: 10}, {Available: 4}, {Available: 8},
	})
	if guard {
		t.Fatal("guard should not fire for all-positive members")
	}
	if pool != 4 {
		t.Fatalf("expected min pool 4, got %d", pool)
	}
}

func TestBootstrapAnomalyGuardIgnoresZeros(t *testing.T) {
	// Half the members reading exactly zero next to positive siblings is
	// treated as never-counted stores, not as real stock-outs.
	pool, guard := Bootstrap([]Member{
		{Available: 0}, {Available: 0}, {Available: 5}, {Available: 7},
	})
	if !guard {
		t.Fatal("expected anomaly guard to fire")
	}
	if pool != 5 {
		t.Fatalf("expected pool 5 (min of positives), got %d", pool)
	}
}

func TestBootstrapMinorityZerosAreTrusted(t *testing.T) {
	pool, guard := Bootstrap([]Member{
		{Available: 0}, {Available: 5}, {Available: 7}, {Available: 9},
	})
	if guard {
		t.Fatal("guard should not fire when zeros are the minority")
	}
	if pool != 0 {
		t.Fatalf("expected pool 0, got %d", pool)
	}
}

func TestBootstrapAllZeros(t *testing.T) {
	pool, guard := Bootstrap([]Member{{Available: 0}, {Available: 0}})
	if guard {
		t.Fatal("guard needs at least one positive member")
	}
	if pool != 0 {
		t.Fatalf("expected pool 0, got %d", pool)
	}
}

func TestBootstrapEmpty(t *testing.T) {
	pool, guard := Bootstrap(nil)
	if pool != 0 || guard {
		t.Fatalf("empty membership should yield 0/false, got %d/%v", pool, guard)
	}
}

func TestAdvanceAppliesDeltaBothWays(t *testing.T) {
	if got := Advance(10, -3); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := Advance(7, 5); got != 12 {
		t.Fatalf("increases must propagate too, got %d", got)
	}
	if got := Advance(2, -9); got != 0 {
		t.Fatalf("pool must never go negative, got %d", got)
	}
}

func TestMinimumIsConservative(t *testing.T) {
	members := []Member{{Available: 9}, {Available: 3}, {Available: 6}}
	if got := Minimum(members); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := Minimum([]Member{{Available: -2}, {Available: 4}}); got != 0 {
		t.Fatalf("negative observations clamp to 0, got %d", got)
	}
	if got := Minimum(nil); got != 0 {
		t.Fatalf("no members yields 0, got %d", got)
	}
}

func TestTargetBufferAndClamp(t *testing.T) {
	if got := Target(10, 2, 20, false); got != 8 {
		t.Fatalf("expected pool-buffer, got %d", got)
	}
	if got := Target(10, 0, 6, false); got != 6 {
		t.Fatalf("expected on-hand clamp, got %d", got)
	}
	if got := Target(1, 5, 20, false); got != 0 {
		t.Fatalf("buffer larger than pool floors at 0, got %d", got)
	}
	if got := Target(10, 0, 6, true); got != 10 {
		t.Fatalf("bootstrap bypass skips the on-hand clamp, got %d", got)
	}
}
