package cmd_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/chiplink/chipctl/cmd"
	"github.com/sarchlab/chiplink/simchip"
)

func writeEnv(content string) string {
	path := filepath.Join(GinkgoT().TempDir(), "test.env")
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())

	for _, name := range []string{
		cmd.EnvArcTimeout, cmd.EnvPollMax, cmd.EnvTraceDB, cmd.EnvTraceLog,
		cmd.EnvMonitorPort, cmd.EnvSysfsRoot, cmd.EnvSim,
	} {
		DeferCleanup(os.Unsetenv, name)
	}

	return path
}

var _ = Describe("Config", func() {
	It("should use defaults without env files", func() {
		cfg, err := cmd.LoadConfig()

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(cmd.DefaultConfig))
	})

	It("should load env files", func() {
		path := writeEnv(`CHIPLINK_ARC_TIMEOUT=250ms
CHIPLINK_POLL_MAX=2ms
CHIPLINK_TRACE_DB=/tmp/trace
CHIPLINK_TRACE_LOG=true
CHIPLINK_MONITOR_PORT=8123
CHIPLINK_SYSFS_ROOT=/fake/sys
CHIPLINK_SIM=gs=1
`)

		cfg, err := cmd.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(cmd.Config{
			ArcTimeout:  250 * time.Millisecond,
			PollMax:     2 * time.Millisecond,
			TraceDB:     "/tmp/trace",
			TraceLog:    true,
			MonitorPort: 8123,
			SysfsRoot:   "/fake/sys",
			Sim:         "gs=1",
		}))
	})

	It("should prefer variables already set", func() {
		path := writeEnv("CHIPLINK_SIM=gs=1\n")
		Expect(os.Setenv(cmd.EnvSim, "bh=2")).To(Succeed())

		cfg, err := cmd.LoadConfig(path)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Sim).To(Equal("bh=2"))
	})

	It("should reject bad values", func() {
		path := writeEnv("CHIPLINK_ARC_TIMEOUT=soon\n")

		_, err := cmd.LoadConfig(path)

		Expect(err).To(MatchError(ContainSubstring(cmd.EnvArcTimeout)))
	})

	It("should fail on missing env files", func() {
		_, err := cmd.LoadConfig(filepath.Join(GinkgoT().TempDir(), "none.env"))

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ParseTopology", func() {
	It("should parse the default host", func() {
		cfg, err := cmd.ParseTopology("default")

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(simchip.DefaultSystemConfig))
	})

	It("should parse counts and flags", func() {
		cfg, err := cmd.ParseTopology("gs=2, wh=3,bh=1,unopenable=1,unknown=2,dead")

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(simchip.SystemConfig{
			Grayskull:    2,
			Blackhole:    1,
			WormholeRing: 3,
			Unopenable:   1,
			UnknownArch:  2,
			DeadFirmware: true,
		}))
	})

	DescribeTable("should reject bad items",
		func(s string) {
			_, err := cmd.ParseTopology(s)
			Expect(err).To(HaveOccurred())
		},
		Entry("unknown key", "tpu=1"),
		Entry("missing count", "gs"),
		Entry("negative count", "gs=-1"),
		Entry("not a number", "wh=many"),
	)
})
