package mixlink

import (
	"context"

	"github.com/bft-labs/mixlink/pkg/transport"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// EntityInfo is a resolved view of one entity for listings.
type EntityInfo struct {
	Name        string
	DisplayName string
	Binary      string
	Volume      int
	Type        volume.Type
}

// ListEntities resolves every entity the settings would show, before the
// display limit is applied.
func ListEntities(ctx context.Context, backend volume.Backend, settings volume.Settings) ([]EntityInfo, error) {
	dir := volume.NewDirectory(backend, settings, nil)
	all, err := dir.All(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]EntityInfo, 0, len(all))
	for _, e := range all {
		out = append(out, EntityInfo{
			Name:        e.Name(),
			DisplayName: volume.DisplayName(e, settings.Names),
			Binary:      e.Binary(),
			Volume:      e.Volume(),
			Type:        e.Type(),
		})
	}
	return out, nil
}

// ListPorts returns the serial ports a device could be attached to.
func ListPorts() ([]transport.PortInfo, error) {
	return transport.ListPorts()
}
