package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Status struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message,omitempty"`
	Database bool   `json:"database,omitempty"`
	Redis    bool   `json:"redis,omitempty"`
}

// HTTPHandler returns an HTTP handler that reports the health status of the
// service. Either dependency may be nil when the binary doesn't use it.
func HTTPHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok"}

		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if pool != nil {
			st.Database = true
			if err := pool.Ping(ctx); err != nil {
				st.OK = false
				st.Message = "db ping failed"
				st.Database = false
			}
		}
		if rdb != nil {
			st.Redis = true
			if err := rdb.Ping(ctx).Err(); err != nil {
				st.OK = false
				st.Message = "redis ping failed"
				st.Redis = false
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !st.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	}
}
