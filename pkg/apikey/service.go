package apikey

import "context"

// Service validates a raw key. It returns nil, nil when the key is unknown;
// an error means the lookup itself failed.
//
// A Service that also implements io.Closer is closed after the single
// Authenticate call it was resolved for.
type Service interface {
	Authenticate(ctx context.Context, key string) (APIKey, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, key string) (APIKey, error)

func (f ServiceFunc) Authenticate(ctx context.Context, key string) (APIKey, error) {
	return f(ctx, key)
}

// ServiceFactory creates a Service for a scheme. It may return nil to let the
// scheme fall back to Options.NewService.
type ServiceFactory interface {
	NewService(scheme string) Service
}

// ServiceFactoryFunc adapts a function to ServiceFactory.
type ServiceFactoryFunc func(scheme string) Service

func (f ServiceFactoryFunc) NewService(scheme string) Service {
	return f(scheme)
}

// ResolveFunc resolves the Service for a scheme on each request.
type ResolveFunc func(ctx context.Context, scheme string) (Service, error)

// Locator returns a ResolveFunc that asks factory first and falls back to
// newService. Either may be nil. When neither yields a Service the returned
// function fails with ErrNoService.
func Locator(factory ServiceFactory, newService func() Service) ResolveFunc {
	return func(_ context.Context, scheme string) (Service, error) {
		if factory != nil {
			if svc := factory.NewService(scheme); svc != nil {
				return svc, nil
			}
		}
		if newService != nil {
			if svc := newService(); svc != nil {
				return svc, nil
			}
		}
		return nil, ErrNoService
	}
}
