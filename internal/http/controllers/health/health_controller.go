// Package health contiene los endpoints de salud del servicio.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/campuskey/campuskey/internal/observability/logger"
	"golang.org/x/sync/errgroup"
)

// Pinger es lo mínimo que un backend debe exponer para el readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Controller atiende /healthz y /readyz.
type Controller struct {
	version string
	deps    map[string]Pinger
}

// NewController crea el controller de salud. deps mapea nombre de
// dependencia a su pinger (db, sessions).
func NewController(version string, deps map[string]Pinger) *Controller {
	return &Controller{version: version, deps: deps}
}

// Healthz maneja GET /healthz: vivo, sin tocar dependencias.
func (c *Controller) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": c.version,
	})
}

// Readyz maneja GET /readyz: verifica cada dependencia con timeout corto.
// Cualquier dependencia caída responde 503 con el detalle por nombre.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	checks := make(map[string]string, len(c.deps))

	// Los pings corren en paralelo: una dependencia lenta no debe sumar
	// su latencia a las demás.
	var g errgroup.Group
	for name, p := range c.deps {
		name, p := name, p
		g.Go(func() error {
			err := p.Ping(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.From(r.Context()).Warn("readiness check failed",
					logger.Component("health"), logger.String("dependency", name), logger.Err(err))
				checks[name] = "down"
				return err
			}
			checks[name] = "ok"
			return nil
		})
	}
	ready := g.Wait() == nil

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": state,
		"checks": checks,
	})
}
