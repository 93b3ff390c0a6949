package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/robaho/go-optsim/internal/payoff"
	. "github.com/robaho/go-optsim/pkg/common"
)

// replays a scenario stream through the debounced scheduler, each line is
//
//	TIMESTAMP [days=N] [spot=PRICE] [vol=VOLATILITY]
//
// where TIMESTAMP is relative (+10ms, +1s) or absolute milliseconds
func main() {
	props := flag.String("props", "configs/optsim.properties", "set the properties file")
	speed := flag.Float64("speed", 1.0, "set the playback speed")
	playback := flag.String("file", "configs/playback.txt", "set the playback file")
	kind := flag.String("kind", "call", "set the option kind")
	strike := flag.Float64("strike", 100, "set the option strike")
	premium := flag.Float64("premium", 5, "set the premium paid per share")
	days := flag.Int("days", 30, "set the initial days to expiry")
	spot := flag.Float64("spot", 100, "set the initial spot")
	vol := flag.Float64("vol", 0.20, "set the initial volatility")

	flag.Parse()

	p, err := NewProperties(*props)
	if err != nil {
		p = EmptyProperties()
	}
	OverlayEnv(p, os.Environ(), "OPTSIM")
	cfg, err := LoadConfig(p)
	if err != nil {
		panic(err)
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	optionKind, err := ParseOptionKind(*kind)
	if err != nil {
		panic(err)
	}
	position := payoff.Position{Ticker: "SIM", Kind: optionKind, Strike: *strike, Premium: *premium, Multiplier: OptionMultiplier, Quantity: 1, Rate: cfg.RiskFreeRate}
	sim, err := payoff.NewSimulator(position, cfg, log)
	if err != nil {
		panic(err)
	}
	defer sim.Close()

	f, err := os.Open(*playback)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var renders atomic.Int64
	sched := payoff.NewScheduler(sim, payoff.Scenario{Days: *days, Spot: *spot, Volatility: *vol}, cfg.Debounce, nil, func(token uint64, r payoff.Result, err error) {
		if err != nil {
			fmt.Println("unable to simulate", err)
			return
		}
		renders.Add(1)
		m := r.Metrics
		fmt.Printf("render %d: days %d spot %.2f vol %.4f value %.4f profit %.2f return %.2f%% pop %.4f\n",
			token, r.Scenario.Days, r.Scenario.Spot, r.Scenario.Volatility, m.Value, m.TotalProfit, m.ReturnPct, m.ProbabilityOfProfit)
	})
	defer sched.Close()

	updates, err := replay(f, sched, *speed)
	if err != nil {
		fmt.Println("playback stopped", err)
	}

	// let the final change settle
	time.Sleep(cfg.Debounce * 2)

	st := sim.Stats()
	fmt.Printf("updates %d, renders %d, simulations %d, cache hits %d misses %d, avg %dus, 99%% %dus\n",
		updates, renders.Load(), st.Requests, st.CacheHits, st.CacheMisses, st.MeanLatency.Microseconds(), st.P99Latency.Microseconds())
}

func replay(r io.Reader, sched *payoff.Scheduler, speed float64) (int, error) {
	scanner := bufio.NewScanner(r)

	var lastTimestamp string
	updates := 0

	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		timestamp, sc, err := parseLine(s, sched.Current())
		if err != nil {
			fmt.Println("invalid format", s, err)
			continue
		}

		duration, err := calcDuration(lastTimestamp, timestamp)
		if err != nil {
			fmt.Println("invalid timestamp", err)
			continue
		}
		if duration != 0 {
			time.Sleep(time.Duration(int64(float64(duration) / speed)))
		}
		sched.Update(sc)
		updates++
		lastTimestamp = timestamp
	}
	return updates, scanner.Err()
}

// parseLine applies the line's changes to the current scenario
func parseLine(s string, current payoff.Scenario) (string, payoff.Scenario, error) {
	parts := strings.Fields(s)
	if len(parts) < 2 {
		return "", current, errors.New("expected a timestamp and at least one change")
	}
	sc := current
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return "", current, errors.New("expected key=value, got " + part)
		}
		var err error
		switch key {
		case "days":
			sc.Days, err = strconv.Atoi(value)
		case "spot":
			sc.Spot, err = strconv.ParseFloat(value, 64)
		case "vol":
			sc.Volatility, err = strconv.ParseFloat(value, 64)
		default:
			err = errors.New("unknown key " + key)
		}
		if err != nil {
			return "", current, err
		}
	}
	return parts[0], sc, nil
}

func calcDuration(lastTimestamp string, timestamp string) (time.Duration, error) {
	if strings.HasPrefix(timestamp, "+") {
		return calcRelativeDuration(timestamp)
	}
	// have absolute timestamp, so previous must be absolute or empty
	if "" == lastTimestamp {
		return 0, nil
	}
	if strings.HasPrefix(lastTimestamp, "+") {
		return 0, errors.New("previous timestamp must be absolute to use absolute timestamps")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return 0, err
	}
	last, err := strconv.ParseInt(lastTimestamp, 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(ts-last) * time.Millisecond, nil

}
func calcRelativeDuration(timestamp string) (time.Duration, error) {
	var suffix string
	var numeric string
	for i := 1; i < len(timestamp); i++ {
		if timestamp[i] >= '0' && timestamp[i] <= '9' {
			continue
		}
		suffix = timestamp[i:]
		numeric = timestamp[1:i]
		break
	}
	var d time.Duration
	switch suffix {
	case "us":
		d = time.Microsecond
	case "ms":
		d = time.Millisecond
	case "s":
		d = time.Second
	case "min":
		d = time.Minute
	default:
		return 0, errors.New("unknown duration suffix in " + timestamp)
	}
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * d, nil
}
