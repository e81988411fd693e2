package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/chiplink/bootfs"
)

func newBootFSCmd(f *flags) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "bootfs <device> <tag>",
		Short: "Decode a table of a Blackhole boot filesystem.",
		Long: "`bootfs 1 boardcfg --dir dump/` decodes dump/boardcfg.bin for " +
			"Blackhole device 1. Well known tags are boardcfg, flshinfo, " +
			"cmfwcfg and origcfg.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return fmt.Errorf("--dir is required")
			}

			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			c, err := s.device(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			bh, ok := c.AsBlackhole()
			if !ok {
				return fmt.Errorf("%s has no boot filesystem", c)
			}

			m, err := bh.BootFS(bootfs.DirTable(dir), args[1])
			if err != nil {
				return err
			}

			values := m.Map()
			for _, num := range m.Numbers() {
				for _, v := range values[num] {
					s.printf("%d: %v\n", num, v)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory holding <tag>.bin files")

	return cmd
}
