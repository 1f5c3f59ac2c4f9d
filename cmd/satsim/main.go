// Command satsim drives an Engine from a file or stdin of hex-encoded TC
// frames, one per line, through TCProcess and printing the hex EP reply
// packet for each frame that produces one. It exists for ground-test rehearsal of the SA/key lifecycle and
// frame security pipeline without a live spacecraft link, in the spirit of
// the teacher's ro/main.go and emulator/main.go flag-driven drivers.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundlink/sdls/pkg/sdls"
	"github.com/groundlink/sdls/pkg/sdls/config"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to the seed configuration file")
		inputPath   = flag.String("input", "", "File of hex-encoded TC frames, one per line (default: stdin)")
		metricsAddr = flag.String("metrics-addr", "", "If set, serve Prometheus metrics on this address (e.g. :9100)")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	var handler slog.Handler
	switch *logFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, nil)
	default:
		handler = slog.NewTextHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	var metrics *sdls.Metrics
	if *metricsAddr != "" {
		metrics = sdls.NewMetrics(prometheus.DefaultRegisterer)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error("metrics server exited", "error", err)
			}
		}()
	}

	engine := sdls.NewEngine(sdls.Config{Logger: logger, Metrics: metrics})

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Error("load config", "error", err)
			os.Exit(1)
		}
		seeds, err := cfg.LoadKeySeeds()
		if err != nil {
			logger.Error("load key seeds", "error", err)
			os.Exit(1)
		}
		if err := engine.Init(seeds); err != nil {
			logger.Error("init engine", "error", err)
			os.Exit(1)
		}
	}

	in := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			logger.Error("open input", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw, err := hex.DecodeString(line)
		if err != nil {
			logger.Warn("skipping malformed line", "line", lineNo, "error", err)
			continue
		}
		reply, err := engine.TCProcess(raw)
		if err != nil {
			logger.Warn("tc_process failed", "line", lineNo, "error", err)
			continue
		}
		if reply != nil {
			fmt.Println(hex.EncodeToString(reply))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("read input", "error", err)
		os.Exit(1)
	}
}
