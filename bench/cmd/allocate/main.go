// Package main — bench/cmd/allocate/main.go
//
// Burn-rate allocation latency benchmark.
//
// Measures the wall-clock time of control.Controller.Tick's BURN_RATE
// mode allocation pass (spec.md §4.4.1, priority-group stable
// allocation) across facility sizes from 1 to 200 units, the startup
// scale named in spec.md's sizing notes.
//
// Output CSV columns: unit_count, p50_ns, p95_ns, p99_ns.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/control"
	"github.com/reactorctl/reactorctl/internal/types"
)

func main() {
	maxUnits := flag.Int("max-units", 200, "Largest facility size to benchmark")
	iterations := flag.Int("iterations", 500, "Tick iterations measured per facility size")
	outputFile := flag.String("output", "allocate_latency.csv", "Output CSV file path")
	flag.Parse()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"unit_count", "p50_ns", "p95_ns", "p99_ns"})

	for n := 1; n <= *maxUnits; n++ {
		p50, p95, p99 := benchAllocate(n, *iterations)
		_ = w.Write([]string{
			strconv.Itoa(n),
			strconv.FormatInt(p50, 10),
			strconv.FormatInt(p95, 10),
			strconv.FormatInt(p99, 10),
		})
		if n == 1 || n == 10 || n == 50 || n == 100 || n == *maxUnits {
			fmt.Printf("units=%-4d p50=%8dns p95=%8dns p99=%8dns\n", n, p50, p95, p99)
		}
	}
	fmt.Printf("Output: %s\n", *outputFile)
}

// benchAllocate builds a facility with n units split across priority
// groups 1..4, then runs iterations BURN_RATE ticks, returning the
// p50/p95/p99 per-tick latency in nanoseconds.
func benchAllocate(n, iterations int) (p50, p95, p99 int64) {
	cfg := config.Defaults().Control
	c := control.New(cfg, 0.05, zap.NewNop())

	for i := 0; i < n; i++ {
		u := &benchUnit{id: i + 1, limBR10: int64(10 + i%40)}
		_ = c.AddUnit(u, (i%4)+1)
	}
	c.RequestMode(types.ModeBurnRate)
	c.SetBurnRateTarget(float64(n) * 2.0)

	matrix := types.MatrixSnapshot{Formed: true, MaxEnergy: 1_000_000, Energy: 500_000}

	samples := make([]int64, iterations)
	now := time.Now()
	for i := 0; i < iterations; i++ {
		now = now.Add(50 * time.Millisecond)
		start := time.Now()
		c.Tick(now, matrix)
		samples[i] = time.Since(start).Nanoseconds()
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return percentile(samples, 0.50), percentile(samples, 0.95), percentile(samples, 0.99)
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// benchUnit is a minimal control.ControlledUnit implementation with no
// bookkeeping beyond what allocation touches, isolating the benchmark
// to the controller's own allocation cost.
type benchUnit struct {
	id      int
	limBR10 int64
	br10    int64
}

func (u *benchUnit) ID() int         { return u.id }
func (u *benchUnit) BladeCount() int { return 4 }
func (u *benchUnit) AEngage()        {}
func (u *benchUnit) ADisengage()     {}
func (u *benchUnit) AScram()         { u.br10 = 0 }
func (u *benchUnit) SetBR10(tenths int64) {
	if tenths > u.limBR10 {
		tenths = u.limBR10
	}
	u.br10 = tenths
}
func (u *benchUnit) ACommitBR10(ramp bool)              {}
func (u *benchUnit) ARampComplete(epsilon float64) bool { return true }
func (u *benchUnit) AGetEffectiveLimit() int64          { return u.limBR10 }
func (u *benchUnit) ACondRPSReset()                     {}
func (u *benchUnit) AckAll()                            {}
func (u *benchUnit) HasCriticalAlarm() bool             { return false }
func (u *benchUnit) GetControlInf() types.ControlRecord {
	return types.ControlRecord{UnitID: u.id, BR10: u.br10, LimBR10: u.limBR10, BladeCount: 4}
}
func (u *benchUnit) SetBurnLimit(tenths int64, facilityMode types.Mode) error {
	u.limBR10 = tenths
	return nil
}
func (u *benchUnit) Update(snap types.ReactorSnapshot, critical bool) {}
