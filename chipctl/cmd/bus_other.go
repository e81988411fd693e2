//go:build !linux

package cmd

import (
	"errors"

	"github.com/sarchlab/chiplink/transport"
)

func hostBus(string) (transport.Bus, error) {
	return nil, errors.New("the PCI bus is only available on linux, use --sim")
}
