//go:build linux

package platform

import (
	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
	"github.com/bft-labs/mixlink/pkg/volume/pulse"
)

func newBackend(logger log.Logger) (volume.Backend, error) {
	return pulse.New(pulse.WithLogger(logger.With(log.String("backend", "pulse")))), nil
}
