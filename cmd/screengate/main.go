package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogogo1024/screengate"
	"github.com/gogogo1024/screengate/internal/metrics"
)

func main() {
	// go test ./... may execute command mains; do not start a session there.
	if strings.HasSuffix(filepath.Base(os.Args[0]), ".test") {
		return
	}
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("config",
		"config", cfg.configPath, "config_loaded", cfg.configLoaded,
		"dotenv", cfg.dotenvPath, "dotenv_loaded", cfg.dotenvLoaded,
		"url", cfg.serverURL, "url_source", cfg.sources["server.url"],
		"authz", cfg.authzEndpoint, "authz_source", cfg.sources["authz.endpoint"],
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(metrics.Config{Registry: registry})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.metricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.metricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "err", err)
			}
		}()
		defer srv.Close()
	}

	client, err := screengate.New(cfg.sessionConfig(),
		screengate.WithLogger(logger),
		screengate.WithMetrics(m),
		screengate.WithEventHandler(logEvents(logger)),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	served := make(chan error, 1)
	go func() { served <- client.Serve(ctx) }()

	go console(ctx, client, in, out)

	err = <-served
	if errors.Is(err, context.Canceled) || errors.Is(err, screengate.ErrClosed) {
		return nil
	}
	return err
}

func newLogger(cfg clientConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.logLevel}
	if cfg.logFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// logEvents logs everything but video frames, which are only counted.
func logEvents(logger *slog.Logger) screengate.EventHandler {
	var frames uint64
	return func(e screengate.Event) {
		switch ev := e.(type) {
		case screengate.VideoEvent:
			frames++
			if frames%300 == 1 {
				logger.Debug("video", "frames", frames, "len", len(ev.Data))
			}
		case screengate.DeviceMessageEvent:
			logger.Info("device message", "type", ev.Message.Type.String(), "clipboard", ev.Message.Clipboard, "push_id", ev.Message.PushID, "push_result", ev.Message.PushResult)
		case screengate.EncodersEvent:
			logger.Info("encoders", "names", ev.Encoders)
		case screengate.ClientsStatsEvent:
			logger.Info("clients stats", "client_id", ev.Stats.ClientID, "device", ev.Stats.DeviceName)
		case screengate.DisplayInfoEvent:
			logger.Info("displays", "count", len(ev.Displays))
		case screengate.ConnectedEvent:
			logger.Info("device connected")
		case screengate.DisconnectedEvent:
			logger.Info("device disconnected", "reason", ev.Reason)
		}
	}
}

// console reads commands from in until EOF or ctx is done; the session
// outlives it. A line's messages are submitted one after another.
func console(ctx context.Context, client *screengate.Client, in io.Reader, out io.Writer) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		msgs, err := parseCommand(sc.Text(), client.State().Snapshot().PointerRect)
		if errors.Is(err, errInfo) {
			printInfo(client, out)
			continue
		}
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		for _, msg := range msgs {
			res := client.Submit(ctx, msg)
			if res.Executed {
				fmt.Fprintf(out, "#%d %s executed (%s)\n", res.Sequence, msg.Type(), res.Path)
			} else {
				fmt.Fprintf(out, "#%d %s dropped (%s): %s\n", res.Sequence, msg.Type(), res.Path, res.Reason)
			}
		}
	}
}

func printInfo(client *screengate.Client, out io.Writer) {
	info, ok := client.State().InitialInfo()
	if !ok {
		fmt.Fprintln(out, "no handshake yet")
		return
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(info)
}
