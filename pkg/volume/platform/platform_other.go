//go:build !linux && !windows

package platform

import (
	"fmt"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
)

func newBackend(logger log.Logger) (volume.Backend, error) {
	return nil, fmt.Errorf("%w: %s", volume.ErrUnsupportedPlatform, Name())
}
