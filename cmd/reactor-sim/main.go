// Package main — cmd/reactor-sim/main.go
//
// reactor-sim: a simulated-device test harness driving a
// simulated.Reactor through a scripted telemetry sequence (temperature
// ramp, coolant loss, waste fill) so the RPS and PLC control loop can
// be exercised end to end without physical hardware, mirroring the
// teacher's octoreflex-sim positioning relative to its production
// agent. Not a production component.
//
// Output: per-tick CSV to stdout (tick, temperature_k, coolant_fill,
// waste_fill, br10, tripped, first_trip).
//
// Usage:
//
//	reactor-sim [flags]
//	reactor-sim -ticks 2000 -coolant-drain-rate 0.0005 -waste-fill-rate 0.0003
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/reactorctl/reactorctl/internal/config"
	"github.com/reactorctl/reactorctl/internal/device/simulated"
	"github.com/reactorctl/reactorctl/internal/plc"
	"github.com/reactorctl/reactorctl/internal/rps"
)

func main() {
	ticks := flag.Int("ticks", 2000, "Number of simulation ticks")
	burnRate := flag.Float64("burn-rate", 40.0, "Commanded burn rate, mB/t")
	limBR10 := flag.Int64("lim-br10", 500, "Unit burn-rate limit, tenths of mB/t")
	tempRisePerTick := flag.Float64("temp-rise-per-tick", 0.6, "Temperature rise per tick, K")
	coolantDrainRate := flag.Float64("coolant-drain-rate", 0.0004, "Coolant fill lost per tick")
	wasteFillRate := flag.Float64("waste-fill-rate", 0.0003, "Waste fill gained per tick")
	startTempK := flag.Float64("start-temp-k", 400.0, "Initial temperature, K")
	flag.Parse()

	log := zap.NewNop()

	reactor := simulated.NewReactor()
	reactor.SetTelemetry(*startTempK, 1.0, 1.0, 0.0, 0.0, 0.0)
	reactor.SetReadable(true)
	reactor.Activate()
	reactor.SetBurnRate(*burnRate)

	protection := rps.New(reactor, config.Defaults().RPS, log)
	loop := plc.New(reactor, protection, config.Defaults().PLC, *limBR10, log)
	loop.ApplySetpoint(true, *burnRate, false)

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"tick", "temperature_k", "coolant_fill", "waste_fill", "br10", "tripped", "first_trip"})

	coolant := 1.0
	waste := 0.0
	temp := *startTempK

	for t := 0; t < *ticks; t++ {
		temp += *tempRisePerTick
		coolant -= *coolantDrainRate
		if coolant < 0 {
			coolant = 0
		}
		waste += *wasteFillRate
		if waste > 1 {
			waste = 1
		}
		reactor.SetTelemetry(temp, reactor.GetFuel(), coolant, waste, reactor.GetHeatedCoolant(), reactor.GetDamagePercent())

		res := loop.Tick()
		st := loop.RPSStatus()

		_ = w.Write([]string{
			strconv.Itoa(t),
			strconv.FormatFloat(temp, 'f', 2, 64),
			strconv.FormatFloat(coolant, 'f', 4, 64),
			strconv.FormatFloat(waste, 'f', 4, 64),
			strconv.FormatInt(res.CurrentBR10, 10),
			strconv.FormatBool(st.Tripped),
			string(st.FirstTrip),
		})

		if st.Tripped {
			break
		}
	}
	w.Flush()

	st := loop.RPSStatus()
	fmt.Fprintf(os.Stderr, "\n=== SIMULATION COMPLETE ===\n")
	fmt.Fprintf(os.Stderr, "tripped: %v\n", st.Tripped)
	if st.Tripped {
		fmt.Fprintf(os.Stderr, "first_trip: %s\n", st.FirstTrip)
	}
}
