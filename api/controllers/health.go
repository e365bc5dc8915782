package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/walletcore-backend/api/responses"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type namedPinger struct {
	name string
	ping pinger
}

// Dependency labels a pinger for readiness reporting.
func Dependency(name string, p pinger) namedPinger {
	return namedPinger{name: name, ping: p}
}

type healthStatus struct {
	Status string `json:"status"`
	Env    string `json:"env"`
}

// HealthLive reports process liveness only.
func HealthLive(cfg *config.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, healthStatus{Status: "ok", Env: cfg.Env})
	}
}

// HealthReady checks the backing stores and fails closed when any is down.
func HealthReady(cfg *config.AppConfig, logg *logger.Logger, deps ...namedPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, dep := range deps {
			if dep.ping == nil {
				continue
			}
			if err := dep.ping.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, dep.name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, healthStatus{Status: "ready", Env: cfg.Env})
	}
}
