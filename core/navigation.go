package core

import "context"

type navigatorKey struct{}

// WithNavigator marks ctx as running inside a navigable (browser-like)
// context.
func WithNavigator(ctx context.Context, nav Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, nav)
}

// NavigatorFrom returns the navigator carried by ctx, or fallback.
// Either may be nil.
func NavigatorFrom(ctx context.Context, fallback Navigator) Navigator {
	if ctx != nil {
		if nav, ok := ctx.Value(navigatorKey{}).(Navigator); ok && nav != nil {
			return nav
		}
	}
	return fallback
}

// NopNavigator ignores every navigation.
type NopNavigator struct{}

func (NopNavigator) CurrentPath() string { return "" }
func (NopNavigator) Navigate(string)     {}
func (NopNavigator) Redirect(string)     {}
