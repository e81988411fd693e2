package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/chiplink/datarecording"
	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/device"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/simchip"
	"github.com/sarchlab/chiplink/tracing"
	"github.com/sarchlab/chiplink/transport"
)

// session is what a command works with: the bus, a scanner with the
// configured tracers, and the chips it opened.
type session struct {
	cfg     Config
	bus     transport.Bus
	scanner *detect.Scanner
	stats   *tracing.StatsTracer
	db      *tracing.DBTracer

	recorder datarecording.Recorder
	chips    []*device.Chip
	out      io.Writer
}

func (f *flags) open(cmd *cobra.Command) (*session, error) {
	cfg, err := LoadConfig(f.envFiles...)
	if err != nil {
		return nil, err
	}

	fl := cmd.Flags()
	if fl.Changed("sim") {
		cfg.Sim = f.sim
	}

	if fl.Changed("trace-db") {
		cfg.TraceDB = f.traceDB
	}

	if fl.Changed("trace-log") {
		cfg.TraceLog = f.traceLog
	}

	if fl.Changed("arc-timeout") {
		cfg.ArcTimeout = f.arcTimeout
	}

	s := &session{cfg: cfg, out: cmd.OutOrStdout()}

	if cfg.Sim != "" {
		topo, err := ParseTopology(cfg.Sim)
		if err != nil {
			return nil, err
		}

		s.bus = simchip.NewSystem(topo)
	} else if s.bus, err = hostBus(cfg.SysfsRoot); err != nil {
		return nil, err
	}

	opts := detect.DefaultOptions()
	opts.Arc.Timeout = cfg.ArcTimeout
	opts.Arc.PollMax = cfg.PollMax
	opts.Locked = true

	s.stats = tracing.NewStatsTracer()
	hooks := []hooking.Hook{s.stats}

	if cfg.TraceLog {
		hooks = append(hooks,
			tracing.NewLogTracer(log.New(cmd.ErrOrStderr(), "", log.Lmicroseconds)))
	}

	if cfg.TraceDB != "" {
		s.recorder, err = datarecording.New(cfg.TraceDB)
		if err != nil {
			return nil, err
		}

		s.db = tracing.NewDBTracer(s.recorder)
		hooks = append(hooks, s.db)
	}

	opts.ChipHooks = hooks
	opts.ArcHooks = hooks

	s.scanner = detect.NewScanner(opts)

	for _, h := range hooks {
		s.scanner.AcceptHook(h)
	}

	return s, nil
}

// device opens the bus device named by arg.
func (s *session) device(ctx context.Context, arg string) (*device.Chip, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("bad device id %q", arg)
	}

	c, err := s.scanner.Open(ctx, s.bus, id)
	if err != nil {
		return nil, err
	}

	s.chips = append(s.chips, c)

	return c, nil
}

// keep closes the chips of recs when the session ends.
func (s *session) keep(recs []detect.Record) {
	for _, r := range recs {
		if r.Chip != nil {
			s.chips = append(s.chips, r.Chip)
		}
	}
}

func (s *session) Close() error {
	for _, c := range s.chips {
		c.Close()
	}

	s.chips = nil

	if s.recorder != nil {
		return s.recorder.Close()
	}

	return nil
}

func (s *session) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}
