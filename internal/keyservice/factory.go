package keyservice

import (
	"github.com/xenking/apikey-auth/pkg/apikey"
)

var _ apikey.ServiceFactory = (*Factory)(nil)

// Factory resolves a Service per scheme name. Schemes without a registered
// Service get the fallback, which may be nil to let the scheme use its own
// Options.NewService.
type Factory struct {
	services map[string]apikey.Service
	fallback apikey.Service
}

// NewFactory returns a Factory with the given fallback.
func NewFactory(fallback apikey.Service) *Factory {
	return &Factory{
		services: make(map[string]apikey.Service),
		fallback: fallback,
	}
}

// Register binds svc to scheme. It must be called before serving.
func (f *Factory) Register(scheme string, svc apikey.Service) *Factory {
	f.services[scheme] = svc
	return f
}

// NewService implements apikey.ServiceFactory.
func (f *Factory) NewService(scheme string) apikey.Service {
	if svc, ok := f.services[scheme]; ok {
		return svc
	}
	return f.fallback
}
