package detect

import (
	"context"
	"fmt"

	"github.com/sarchlab/chiplink/device"
	"github.com/sarchlab/chiplink/hooking"
	"github.com/sarchlab/chiplink/transport"
)

// Scanner runs detection over a bus. Devices a scan drops are reported
// through HookPosDeviceSkipped.
type Scanner struct {
	hooking.HookableBase

	opts Options
}

// NewScanner creates a scanner.
func NewScanner(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Options returns the options of the scanner.
func (s *Scanner) Options() Options {
	return s.opts
}

func (s *Scanner) raise(pos *hooking.HookPos, rec Record) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   &rec,
		Detail: rec.Err,
	})
}

// ScanAll detects every device on the bus and returns all records,
// failures included.
func (s *Scanner) ScanAll(ctx context.Context, bus transport.Bus) ([]Record, error) {
	ids, err := bus.Scan()
	if err != nil {
		return nil, fmt.Errorf("scanning bus: %w", err)
	}

	recs := make([]Record, 0, len(ids))

	for _, id := range ids {
		rec := Upgrade(ctx, Probe(bus, id, s.opts))

		switch rec.State {
		case Verified:
			s.raise(HookPosDeviceVerified, rec)
		default:
			s.raise(HookPosDeviceSkipped, rec)
		}

		recs = append(recs, rec)
	}

	return recs, nil
}

// Scan returns the verified chips of the bus. Devices that fail are
// skipped.
func (s *Scanner) Scan(ctx context.Context, bus transport.Bus) ([]*device.Chip, error) {
	recs, err := s.ScanAll(ctx, bus)
	if err != nil {
		return nil, err
	}

	var chips []*device.Chip

	for _, rec := range recs {
		if rec.State == Verified {
			chips = append(chips, rec.Chip)
		}
	}

	return chips, nil
}

// Open detects one device and returns the error that stopped it, if any.
func (s *Scanner) Open(ctx context.Context, bus transport.Bus, id int) (*device.Chip, error) {
	rec := Upgrade(ctx, Probe(bus, id, s.opts))
	if rec.State == Failed {
		return nil, rec.Err
	}

	return rec.Chip, nil
}

// Scan detects the chips of bus with default hooks-free scanning.
func Scan(ctx context.Context, bus transport.Bus, opts Options) ([]*device.Chip, error) {
	return NewScanner(opts).Scan(ctx, bus)
}

// ScanAll returns every record of bus.
func ScanAll(ctx context.Context, bus transport.Bus, opts Options) ([]Record, error) {
	return NewScanner(opts).ScanAll(ctx, bus)
}

// Open detects one device of bus.
func Open(ctx context.Context, bus transport.Bus, id int, opts Options) (*device.Chip, error) {
	return NewScanner(opts).Open(ctx, bus, id)
}
