//go:build linux

package cmd

import (
	"github.com/sarchlab/chiplink/transport"
	"github.com/sarchlab/chiplink/transport/sysfs"
)

func hostBus(root string) (transport.Bus, error) {
	return sysfs.NewBus(root), nil
}
