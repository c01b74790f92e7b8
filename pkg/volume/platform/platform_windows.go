//go:build windows

package platform

import (
	"fmt"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
	"github.com/bft-labs/mixlink/pkg/volume/wasapi"
)

func newBackend(logger log.Logger) (volume.Backend, error) {
	dev, err := wasapi.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	return wasapi.New(dev, wasapi.WithLogger(logger.With(log.String("backend", "wasapi")))), nil
}
