package loader

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/rawstore"
)

type storeProvider struct {
	*rawstore.Store
}

// FromStore adapts a raw extract store to a RawProvider.
func FromStore(store *rawstore.Store) RawProvider {
	return storeProvider{Store: store}
}

func (p storeProvider) Open(ctx context.Context, survey string, year int) (RawHandle, error) {
	handle, err := p.Store.Open(ctx, survey, year)
	if err != nil {
		return nil, err
	}
	return handle, nil
}
