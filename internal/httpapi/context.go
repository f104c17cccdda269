package httpapi

import (
	"context"
)

// serverBaseCtx is the daemon's shutdown-scoped context. Handlers join it
// with each request context so a stopping server cancels in-flight
// adapter runs, not just new connections.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process context joined into every handler.
// A nil ctx restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context that is done as soon as either input is.
// The cancel func must always be called so the watcher goroutine exits
// with the handler.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}
