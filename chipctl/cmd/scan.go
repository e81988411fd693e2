package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/chiplink/detect"
	"github.com/sarchlab/chiplink/device"
)

func newScanCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Detect the chips on the bus.",
		Long: "`scan` lists every device on the bus with its detection state. " +
			"Devices that fail are listed with the reason.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.scanner.ScanAll(cmd.Context(), s.bus)
			if err != nil {
				return err
			}

			s.keep(recs)
			s.printRecords(recs)

			return nil
		},
	}
}

func newMeshCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "mesh",
		Short: "Detect the chips on the bus and those reachable over Ethernet.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.scanMesh(cmd)
			if err != nil {
				return err
			}

			s.printRecords(recs)

			return nil
		},
	}
}

// scanMesh scans the bus, then walks the mesh from the verified chips.
func (s *session) scanMesh(cmd *cobra.Command) ([]detect.Record, error) {
	recs, err := s.scanner.ScanAll(cmd.Context(), s.bus)
	if err != nil {
		return nil, err
	}

	s.keep(recs)

	var local []*device.Chip

	for _, r := range recs {
		if r.State == detect.Verified {
			local = append(local, r.Chip)
		}
	}

	remote := s.scanner.WalkMesh(cmd.Context(), local)
	s.keep(remote)

	return append(recs, remote...), nil
}

func (s *session) printRecords(recs []detect.Record) {
	for _, r := range recs {
		s.printf("%s\n", r)
	}
}
