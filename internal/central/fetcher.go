package central

import (
	"context"
	"fmt"

	"github.com/hmccu/homematic-core/internal/entity"
)

// backendFetcher adapts the session surface to the device cache's fetch
// interface for one interface ID.
type backendFetcher struct {
	backend     Backend
	interfaceID string
}

// FetchValue reads one parameter live from the backend. VALUES parameters
// use the single-value call; everything else reads the whole paramset and
// picks the parameter out, which is how the backend exposes MASTER data.
func (f *backendFetcher) FetchValue(ctx context.Context, channelAddress string, paramset entity.ParamsetKey, parameter string) (any, error) {
	if paramset == entity.ParamsetValues {
		return f.backend.GetValue(ctx, f.interfaceID, channelAddress, parameter)
	}

	values, err := f.backend.GetParamset(ctx, f.interfaceID, channelAddress, string(paramset))
	if err != nil {
		return nil, err
	}
	value, ok := values[parameter]
	if !ok {
		return nil, fmt.Errorf("central: parameter %s missing from %s paramset of %s", parameter, paramset, channelAddress)
	}
	return value, nil
}
