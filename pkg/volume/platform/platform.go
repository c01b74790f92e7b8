// Package platform selects the volume backend for the running operating system.
package platform

import (
	"runtime"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// Name reports the platform identifier used in log lines.
func Name() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// Backend returns the backend for this platform, or an error wrapping
// volume.ErrUnsupportedPlatform.
func Backend(logger log.Logger) (volume.Backend, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return newBackend(logger)
}
