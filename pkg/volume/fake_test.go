package volume

import (
	"context"
	"errors"
)

type fakeEntity struct {
	name    string
	binary  string
	typ     Type
	volume  int
	sets    []int
	failSet bool
}

func (f *fakeEntity) Name() string   { return f.name }
func (f *fakeEntity) Binary() string { return f.binary }
func (f *fakeEntity) Type() Type     { return f.typ }
func (f *fakeEntity) Volume() int    { return f.volume }

func (f *fakeEntity) SetVolume(v int) error {
	if f.failSet {
		return errors.New("set rejected")
	}
	f.sets = append(f.sets, v)
	f.volume = Clamp(v)
	return nil
}

func app(binary string) *fakeEntity {
	return &fakeEntity{name: binary, binary: binary, typ: TypeApplication, volume: 50}
}

type fakeBackend struct {
	apps        []Entity
	master      Entity
	masterErr   error
	appErrs     []error
	appCalls    int
	masterCalls int
}

func (b *fakeBackend) Applications(ctx context.Context) ([]Entity, error) {
	b.appCalls++
	if len(b.appErrs) > 0 {
		err := b.appErrs[0]
		b.appErrs = b.appErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return append([]Entity(nil), b.apps...), nil
}

func (b *fakeBackend) Master(ctx context.Context) (Entity, error) {
	b.masterCalls++
	return b.master, b.masterErr
}

func binaries(es []Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Binary()
	}
	return out
}
