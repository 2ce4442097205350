package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GregHandsley/pokeflip-sub002/api/responses"
	"github.com/GregHandsley/pokeflip-sub002/internal/audit"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
	"github.com/GregHandsley/pokeflip-sub002/pkg/logger"
	pkgredis "github.com/GregHandsley/pokeflip-sub002/pkg/redis"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "Idempotency-Replayed"

	splitMergeReplayTTL = 24 * time.Hour
	saleReplayTTL       = 7 * 24 * time.Hour
	// a claim left by a crashed request frees the key after this long
	inFlightTTL = 2 * time.Minute
)

// idempotentRoute is a POST path whose {placeholders} match exactly one
// non-empty segment.
type idempotentRoute struct {
	segments []string
	ttl      time.Duration
}

func route(pattern string, ttl time.Duration) idempotentRoute {
	return idempotentRoute{segments: strings.Split(strings.Trim(pattern, "/"), "/"), ttl: ttl}
}

func (rt idempotentRoute) matches(path string) bool {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != len(rt.segments) {
		return false
	}
	for i, seg := range rt.segments {
		if strings.HasPrefix(seg, "{") {
			if parts[i] == "" {
				return false
			}
			continue
		}
		if parts[i] != seg {
			return false
		}
	}
	return true
}

// Sales consume stock, so their keys live as long as a marketplace retries
// order webhooks; split and merge only need to survive a client retry.
var idempotentRoutes = []idempotentRoute{
	route("/api/v1/sales", saleReplayTTL),
	route("/api/v1/bundles/{bundleId}/sell", saleReplayTTL),
	route("/api/v1/lots/{lotId}/split", splitMergeReplayTTL),
	route("/api/v1/lots/merge", splitMergeReplayTTL),
}

// replayTTL reports how long a response for method+path is kept, or false
// when the route is not guarded.
func replayTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	for _, rt := range idempotentRoutes {
		if rt.matches(path) {
			return rt.ttl, true
		}
	}
	return 0, false
}

type entryState string

const (
	entryInFlight  entryState = "in_flight"
	entryCompleted entryState = "completed"
)

type idempotencyEntry struct {
	State       entryState `json:"state"`
	Fingerprint string     `json:"fingerprint"`
	Status      int        `json:"status,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Body        []byte     `json:"body,omitempty"`
	StoredAt    time.Time  `json:"stored_at"`
}

// Idempotency guards ledger writes that consume or reshape quantity. The
// first request for a key claims it before the handler runs, so a concurrent
// duplicate gets a conflict instead of selling the same stock twice. Later
// retries replay the stored response. Server errors release the claim.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, guarded := replayTTL(r.Method, r.URL.Path)
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if clientKey == "" {
				if required {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyKeyHeader+" header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fp := fingerprint(r.Method, r.URL.Path, body)
			key := store.IdempotencyKey(buildScope(r), clientKey)

			existing, err := claim(ctx, store, key, fp)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if existing != nil {
				switch {
				case existing.Fingerprint != fp:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
				case existing.State == entryInFlight:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "a request with this idempotency key is still in progress"))
				default:
					replay(w, existing)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			completed := false
			defer func() {
				if !completed {
					release(context.WithoutCancel(ctx), store, key, logg)
				}
			}()
			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			entry := idempotencyEntry{
				State:       entryCompleted,
				Fingerprint: fp,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				StoredAt:    time.Now().UTC(),
			}
			payload, err := json.Marshal(entry)
			if err != nil {
				logFailure(ctx, logg, "idempotency.encode_failed", err)
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(payload), ttl); err != nil {
				logFailure(ctx, logg, "idempotency.store_failed", err)
				return
			}
			completed = true
		})
	}
}

// claim stores an in-flight marker for key. It returns the entry already
// holding the key, or nil when this request now owns it.
func claim(ctx context.Context, store pkgredis.IdempotencyStore, key, fp string) (*idempotencyEntry, error) {
	marker, err := json.Marshal(idempotencyEntry{State: entryInFlight, Fingerprint: fp, StoredAt: time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	// the holder may expire between SETNX and GET; one more round settles it
	for attempt := 0; attempt < 2; attempt++ {
		won, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
		if err != nil {
			return nil, err
		}
		if won {
			return nil, nil
		}
		raw, err := store.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var entry idempotencyEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode idempotency entry: %w", err)
		}
		return &entry, nil
	}
	return nil, errors.New("idempotency key changed hands during claim")
}

func release(ctx context.Context, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	if err := store.Del(ctx, key); err != nil {
		logFailure(ctx, logg, "idempotency.release_failed", err)
	}
}

func replay(w http.ResponseWriter, entry *idempotencyEntry) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set(IdempotencyReplayedHeader, "true")
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

// buildScope keeps keys from different callers and routes apart.
func buildScope(r *http.Request) string {
	return audit.ActorFrom(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logFailure(ctx context.Context, logg *logger.Logger, event string, err error) {
	if logg != nil {
		logg.Error(ctx, event, err)
	}
}
