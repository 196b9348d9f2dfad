package compressor

import "testing"

func TestPlanWorkers(t *testing.T) {
	cases := []struct {
		mb    uint64
		cores int
		want  int
	}{
		{256, 16, 2},
		{800, 16, 4},
		{4096, 16, 8},
		{4096, 1, 1},
		{511, 3, 2},
		{512, 16, 4},
		{1023, 16, 4},
		{1024, 16, 8},
		{1024, 6, 6},
		{100, 0, 1},
		{4096, -2, 1},
	}
	for _, tc := range cases {
		if got := PlanWorkers(tc.mb, tc.cores); got != tc.want {
			t.Errorf("PlanWorkers(%d, %d) = %d, want %d", tc.mb, tc.cores, got, tc.want)
		}
	}
}

func TestPlanWorkersBoundsAndMonotonic(t *testing.T) {
	memories := []uint64{0, 1, 256, 511, 512, 800, 1023, 1024, 2048, 1 << 20}
	for cores := 0; cores <= 64; cores++ {
		prev := 0
		for _, mb := range memories {
			got := PlanWorkers(mb, cores)
			if got < 1 || got > 8 {
				t.Fatalf("PlanWorkers(%d, %d) = %d, outside [1, 8]", mb, cores, got)
			}
			if got < prev {
				t.Fatalf("PlanWorkers not monotonic in memory at (%d, %d): %d < %d", mb, cores, got, prev)
			}
			prev = got
		}
	}
}
