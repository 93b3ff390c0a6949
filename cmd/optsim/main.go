package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/robaho/go-optsim/internal/marketdata"
	"github.com/robaho/go-optsim/internal/orders"
	"github.com/robaho/go-optsim/internal/portfolio"
	"github.com/robaho/go-optsim/internal/report"
	. "github.com/robaho/go-optsim/pkg/common"
)

func main() {
	propsFile := flag.String("props", "configs/optsim.properties", "set the properties file")
	quotesFile := flag.String("quotes", "", "override the quotes file")
	reportFile := flag.String("report", "", "override the execution report journal")
	level := flag.String("level", "", "override the log level")

	flag.Parse()

	p, err := NewProperties(*propsFile)
	if err != nil {
		fmt.Println("unable to read properties, using defaults:", err)
		p = EmptyProperties()
	}
	OverlayEnv(p, os.Environ(), "OPTSIM")
	if *quotesFile != "" {
		p.SetString("quotes_file", *quotesFile)
	}
	if *reportFile != "" {
		p.SetString("report_file", *reportFile)
	}
	if *level != "" {
		p.SetString("log_level", *level)
	}

	cfg, err := LoadConfig(p)
	if err != nil {
		panic(err)
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	instruments := NewInstrumentMap()
	quotes := marketdata.NewStatic(instruments, log.Named("marketdata"))
	if cfg.QuotesFile != "" {
		if quotes, err = marketdata.LoadStatic(cfg.QuotesFile, instruments, log.Named("marketdata")); err != nil {
			log.Fatal("unable to load quotes", zap.Error(err))
		}
	}

	var journal orders.Journal
	if cfg.ReportFile != "" {
		j, err := report.OpenJournal(cfg.ReportFile, log.Named("report"))
		if err != nil {
			log.Fatal("unable to open report journal", zap.Error(err))
		}
		defer j.Close()
		journal = j
	}

	store := portfolio.NewStore(cfg.InitialCash, log.Named("portfolio"))
	handler := orders.NewHandler(quotes, store, cfg, journal, log.Named("orders"))

	scanner := bufio.NewScanner(os.Stdin)
	sh := newShell(cfg, instruments, quotes, store, handler, scanner, os.Stdout, log)
	defer sh.closeSimulation()

	fmt.Println("use 'help' to get a list of commands")
	fmt.Print("Command?")

	for scanner.Scan() {
		if !sh.execute(scanner.Text()) {
			break
		}
		fmt.Print("Command?")
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
