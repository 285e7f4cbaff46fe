// byztimed runs a BYZTIME provider: it periodically samples this
// host's offset via sampleOffset and publishes it into
// the shared mmap'd record at --path so that any number of local
// readers can consult it via the consumer package.
//
// This program does not itself implement NTP/Roughtime/whatever
// reference protocol a deployment chooses; SetOffset takes an already
// computed (offset, error, as_of) triple. Wire it to a real reference
// client by replacing sampleOffset.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/byztime/byztime/internal/config"
	"github.com/byztime/byztime/platform"
	"github.com/byztime/byztime/provider"
	"github.com/byztime/byztime/stamp"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	flags := flag.NewFlagSet("byztimed", flag.ContinueOnError)
	flags.SetOutput(errOut)

	flagConfig := flags.StringP("config", "c", "", "JSONC config `file`")
	flagPath := flags.String("path", "", "path to the shared byztime data file")
	flagDriftPPB := flags.Int64("drift-ppb", 0, "assumed local clock drift, parts per billion")
	flagPoll := flags.String("poll-interval", "", "how often to refresh the published offset")
	flagBootstrapSidecar := flags.Bool("bootstrap-sidecar", false, "mirror real_offset to <path>.bootstrap.json")
	flagPrintConfig := flags.Bool("print-config", false, "print the effective configuration and exit")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := resolveConfig(*flagConfig, *flagPath, *flagDriftPPB, *flagPoll, *flagBootstrapSidecar)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)

		return 1
	}

	if *flagPrintConfig {
		fmt.Fprintln(out, cfg.String())

		return 0
	}

	w, err := provider.OpenWriter(cfg.Path)
	if err != nil {
		fmt.Fprintln(errOut, "error: opening", cfg.Path, ":", err)

		return 1
	}

	defer w.Close()

	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		fmt.Fprintln(errOut, "error: invalid poll-interval", cfg.PollInterval, ":", err)

		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	logf := func(format string, a ...any) {
		now, err := localNow()
		if err != nil {
			fmt.Fprintf(out, format+"\n", a...)

			return
		}

		fmt.Fprintf(out, "[%s] "+format+"\n", append([]any{now}, a...)...)
	}

	logf("byztimed starting: path=%s drift_ppb=%d poll_interval=%s", cfg.Path, cfg.DriftPPB, pollInterval)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := publishOnce(w, cfg); err != nil {
				logf("publish failed: %v", err)
			}
		case <-sigCh:
			logf("shutting down")

			return 0
		}
	}
}

// publishOnce computes and publishes one offset sample, and mirrors
// real_offset to the bootstrap sidecar when enabled.
func publishOnce(w *provider.Writer, cfg config.Config) error {
	offset, errBound, asOf, err := sampleOffset(cfg)
	if err != nil {
		return fmt.Errorf("sampling offset: %w", err)
	}

	if err := w.SetOffset(offset, errBound, &asOf); err != nil {
		return fmt.Errorf("publishing offset: %w", err)
	}

	if err := w.UpdateRealOffset(); err != nil {
		return fmt.Errorf("updating real offset: %w", err)
	}

	if cfg.Bootstrap != "" {
		if err := writeBootstrapSidecar(w, cfg.Bootstrap); err != nil {
			return fmt.Errorf("writing bootstrap sidecar: %w", err)
		}
	}

	return nil
}

// sampleOffset stands in for a real reference-clock client. It
// reports a zero offset with a fixed 10-second error bound, as of the
// current local time.
func sampleOffset(_ config.Config) (offset, errBound, asOf stamp.Stamp, err error) {
	asOf, err = platform.LocalTime()
	if err != nil {
		return stamp.Stamp{}, stamp.Stamp{}, stamp.Stamp{}, err
	}

	return stamp.Stamp{}, stamp.Stamp{Seconds: 10}, asOf, nil
}

// bootstrapSnapshot is the JSON shape mirrored to the sidecar file.
type bootstrapSnapshot struct {
	RealOffsetSeconds     int64 `json:"real_offset_seconds"`
	RealOffsetNanoseconds int64 `json:"real_offset_nanoseconds"`
}

// writeBootstrapSidecar mirrors the writer's current real-offset
// estimate to path via a crash-safe replace-via-rename write. Nothing
// in this module reads the sidecar back: a freshly created data file
// is still seeded by the provider's first-time init, with a zero
// real_offset.
func writeBootstrapSidecar(w *provider.Writer, path string) error {
	realOffset, err := w.RealOffset()
	if err != nil {
		return err
	}

	snapshot := bootstrapSnapshot{
		RealOffsetSeconds:     realOffset.Seconds,
		RealOffsetNanoseconds: realOffset.Nanoseconds,
	}

	buf, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	return atomic.WriteFile(path, bytes.NewReader(buf))
}

func localNow() (string, error) {
	local, err := platform.LocalTime()
	if err != nil {
		return "", err
	}

	return stamp.Format(local), nil
}

func resolveConfig(configPath, path string, driftPPB int64, poll string, bootstrapSidecar bool) (config.Config, error) {
	cfg, err := config.LoadFile(config.Default(), configPath)
	if err != nil {
		return config.Config{}, err
	}

	cfg = config.ApplyEnv(cfg)

	if path != "" {
		cfg.Path = path
	}

	if driftPPB != 0 {
		cfg.DriftPPB = driftPPB
	}

	if poll != "" {
		cfg.PollInterval = poll
	}

	if bootstrapSidecar && cfg.Bootstrap == "" {
		cfg.Bootstrap = cfg.Path + ".bootstrap.json"
	}

	return cfg, nil
}
