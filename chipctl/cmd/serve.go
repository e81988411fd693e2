package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/chiplink/monitoring"
)

func newServeCmd(f *flags) *cobra.Command {
	var (
		port     int
		openPage bool
		noMesh   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Detect the chips and serve them over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("port") {
				port = s.cfg.MonitorPort
			}

			m := monitoring.NewMonitor().WithPortNumber(port)
			m.RegisterStats(s.stats)

			ids, err := s.bus.Scan()
			if err != nil {
				return fmt.Errorf("scanning bus: %w", err)
			}

			bar := m.CreateProgressBar("scan", uint64(len(ids)))
			s.scanner.AcceptHook(bar)

			url, err := m.StartServer()
			if err != nil {
				return err
			}

			if noMesh {
				recs, err := s.scanner.ScanAll(cmd.Context(), s.bus)
				if err != nil {
					return err
				}

				s.keep(recs)
				m.RegisterRecords(recs...)
			} else {
				recs, err := s.scanMesh(cmd)
				if err != nil {
					return err
				}

				m.RegisterRecords(recs...)
			}

			m.CompleteProgressBar(bar)
			s.printf("serving %s\n", url)

			if openPage {
				if err := browser.OpenURL(url + "/api/chips"); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "cannot open browser: %v\n", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return m.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port of the monitor, random when 0")
	cmd.Flags().BoolVar(&openPage, "open", false, "open the chip list in a browser")
	cmd.Flags().BoolVar(&noMesh, "no-mesh", false, "do not walk the Ethernet mesh")

	return cmd
}
