package detect

import (
	"context"
	"fmt"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/arch"
	"github.com/sarchlab/chiplink/chip"
	"github.com/sarchlab/chiplink/chiperr"
	"github.com/sarchlab/chiplink/device"
)

type hop struct {
	via    *device.Chip
	egress arch.Coord
	dst    addr.EthAddr
	hops   uint8
}

// WalkMesh finds the chips reachable over trained Ethernet links from the
// local Wormhole chips. Each chip is visited once, through the shortest
// route found first. Chips that cannot be verified are reported through
// HookPosDeviceSkipped and returned as Failed records.
func (s *Scanner) WalkMesh(ctx context.Context, local []*device.Chip) []Record {
	visited := make(map[addr.EthAddr]bool)

	var queue []hop

	for _, c := range local {
		wh, ok := c.AsWormhole()
		if !ok || c.IsRemote() {
			continue
		}

		if self, ok := wh.EthAddr(); ok {
			visited[self] = true
		}
	}

	for _, c := range local {
		wh, ok := c.AsWormhole()
		if !ok || c.IsRemote() || !wh.EthSafe() {
			continue
		}

		for _, l := range wh.TrainedLinks() {
			queue = append(queue, hop{via: c, egress: l.Core, dst: l.Remote, hops: 1})
		}
	}

	var recs []Record

	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]

		if visited[h.dst] {
			continue
		}

		visited[h.dst] = true

		rec := s.visit(ctx, h)
		recs = append(recs, rec)

		if rec.State != Verified {
			s.raise(HookPosDeviceSkipped, rec)
			continue
		}

		s.raise(HookPosDeviceVerified, rec)

		wh, _ := rec.Chip.AsWormhole()
		if !wh.EthSafe() {
			continue
		}

		for _, l := range wh.TrainedLinks() {
			if visited[l.Remote] {
				continue
			}

			queue = append(queue, hop{
				via:    h.via,
				egress: h.egress,
				dst:    l.Remote,
				hops:   h.hops + 1,
			})
		}
	}

	return recs
}

func (s *Scanner) visit(ctx context.Context, h hop) Record {
	target := addr.RemoteTarget{
		Chip: h.dst,
		Route: addr.Route{
			EgressX: h.egress.X,
			EgressY: h.egress.Y,
			Hops:    h.hops,
		},
	}

	rec := Record{ID: chiperr.NoDevice, Remote: &target, State: Enumerated}
	spec := arch.MustLookup(arch.Wormhole)

	eth := chip.NewEth(h.via.Interface(), target, spec)

	c, err := s.opts.bind(eth, spec, chiperr.NoDevice)
	if err != nil {
		return rec.fail(ReasonTransport, err)
	}

	rec.Chip = c
	rec.State = Partial

	tag, err := chip.Read32(c.Interface(), arch.TagRegister)
	if err != nil {
		return rec.fail(ReasonTransport, err)
	}

	rec.Tag = tag
	rec.Arch = arch.FromTag(tag)

	switch rec.Arch {
	case arch.Wormhole:
	case arch.Unknown:
		return rec.fail(ReasonUnknownArch, chiperr.UnknownArch(chiperr.NoDevice, tag))
	default:
		return rec.fail(ReasonArchMismatch,
			chiperr.New(chiperr.KindArchMismatch, "mesh walk",
				fmt.Errorf("%s is %s, only wormhole chips join the mesh",
					target.Chip, rec.Arch)))
	}

	return Upgrade(ctx, rec)
}

// WalkMesh finds the remote chips of local with default options.
func WalkMesh(ctx context.Context, local []*device.Chip, opts Options) []Record {
	return NewScanner(opts).WalkMesh(ctx, local)
}
