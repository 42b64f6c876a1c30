package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	idemPending    = "pending"
	idemHeader     = "Idempotency-Key"
	idemReplayFlag = "Idempotent-Replayed"
)

// Idem makes write endpoints safe to retry. The first request carrying an
// Idempotency-Key runs normally; a successful response is stored and replayed
// verbatim for repeats within TTL. Failed responses release the key so the
// client can try again, and a repeat that arrives while the first is still
// running gets 409 IDEMPOTENCY_IN_PROGRESS.
type Idem struct {
	R   redis.Cmdable
	TTL time.Duration
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(idemHeader)
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := idemKey(r.Method, r.URL.Path, header)
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}

		fresh, err := i.R.SetNX(ctx, key, idemPending, ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store unavailable", nil)
			return
		}
		if !fresh {
			i.replay(ctx, w, key)
			return
		}

		rec := &bufferedWriter{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			if !completed {
				_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
		completed = true

		if rec.status >= 200 && rec.status < 300 {
			payload, err := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err == nil {
				_ = i.R.Set(context.WithoutCancel(ctx), key, payload, ttl).Err()
				return
			}
		}
		_ = i.R.Del(context.WithoutCancel(ctx), key).Err()
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key string) {
	raw, err := i.R.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store unavailable", nil)
		return
	}
	if err == redis.Nil || raw == idemPending {
		JSONError(w, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "a request with this idempotency key is still being processed", nil)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "corrupt idempotency record", nil)
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(idemReplayFlag, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func idemKey(method, path, key string) string {
	sum := sha256.Sum256([]byte(method + " " + path + " " + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

// bufferedWriter passes the response through while keeping a copy of it.
type bufferedWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}
