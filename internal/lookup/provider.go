package lookup

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the provider registered under name.
func New(name string, opts Options, logger *zap.Logger) (Client, error) {
	switch name {
	case AviationStackName:
		return NewAviationStack(opts, logger), nil
	case OpenSkyName:
		return NewOpenSky(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown flight lookup provider %q", name)
	}
}
