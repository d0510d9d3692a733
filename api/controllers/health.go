package controllers

import (
	"context"
	"net/http"

	"github.com/lukaskovac/motormarkt-backend/api/responses"
	"github.com/lukaskovac/motormarkt-backend/pkg/config"
	pkgerrors "github.com/lukaskovac/motormarkt-backend/pkg/errors"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Motormarkt-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the dependencies a webhook delivery actually needs:
// the ledger database and the redis guard.
func HealthReady(cfg *config.Config, db pinger, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Motormarkt-Env", cfg.App.Env)

		ctx := r.Context()
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
