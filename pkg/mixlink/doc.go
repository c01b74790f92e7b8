// Package mixlink provides an embeddable runner that keeps a volume display
// device in sync with the local master and application volumes.
//
// # Basic Usage
//
//	cfg := mixlink.DefaultConfig()
//	cfg.Port = "/dev/ttyACM0"
//
//	r, err := mixlink.New(cfg, mixlink.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := r.Start(ctx); err != nil {
//	    return err
//	}
//	defer r.Stop()
//
// New selects the volume backend for the running platform and fails with an
// error wrapping volume.ErrUnsupportedPlatform when there is none. Use
// WithBackend to supply one explicitly.
//
// # Debug Mode
//
// With Config.Debug the runner speaks the line protocol on stdin and stdout.
// Reads block without a timeout and the run ends at end of input.
//
// # Event Handling
//
// Implement EventHandler and pass it via WithEventHandler to observe
// connection state changes. Handlers run on the sync goroutine and should
// return quickly.
package mixlink
