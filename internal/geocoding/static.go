package geocoding

import (
	"context"
	"hash/fnv"
	"strings"
)

// Static resolves every non-empty address to a deterministic point. It
// stands in for Google in development when no API key is configured.
type Static struct{}

func (Static) Resolve(_ context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, NewProviderError(ErrorNotFound, "static", "address is empty", nil)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(address)))
	sum := h.Sum32()
	return &Location{
		FormattedAddress: address,
		Latitude:         float64(sum%18000)/100 - 90,
		Longitude:        float64((sum/18000)%36000)/100 - 180,
	}, nil
}
