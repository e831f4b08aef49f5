package harness

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/RobertWHurst/navaros"

	"github.com/next-trace/scg-stream-verifier/circuitbreaker"
)

const (
	// ServiceID is the application name reported in metrics origins.
	ServiceID = "application"
	// HelloGroup and HelloCommand identify the breaker around GET /.
	HelloGroup   = "TestApplication"
	HelloCommand = "hello"
	HelloBody    = "Hello World"
)

// HelloKey is the breaker key of the hello command.
var HelloKey = circuitbreaker.Key{Group: HelloGroup, Command: HelloCommand}

// TestApplication serves GET / through the hello command.
type TestApplication struct {
	router   *navaros.Router
	breakers *circuitbreaker.Registry
	logger   *slog.Logger
}

// NewTestApplication builds the application. A nil registry gets a private one.
func NewTestApplication(breakers *circuitbreaker.Registry, logger *slog.Logger) *TestApplication {
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(nil)
	}

	if logger == nil {
		logger = slog.Default()
	}

	a := &TestApplication{router: navaros.NewRouter(), breakers: breakers, logger: logger}
	a.router.Get("/", a.handleHello)

	return a
}

// Hello runs the hello command through its breaker.
func (a *TestApplication) Hello(ctx context.Context) (string, error) {
	var out string

	err := a.breakers.Breaker(HelloKey).Execute(ctx, func(context.Context) error {
		out = HelloBody
		return nil
	})

	return out, err
}

func (a *TestApplication) handleHello(ctx *navaros.Context) {
	body, err := a.Hello(ctx.Request().Context())
	if err != nil {
		a.logger.WarnContext(ctx.Request().Context(), "hello command failed", "err", err)
		ctx.Status = http.StatusServiceUnavailable
		ctx.Body = err.Error()

		return
	}

	ctx.Headers.Set("Content-Type", "text/plain; charset=utf-8")
	ctx.Body = body
}

func (a *TestApplication) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
