// README: Bench cases: connectivity, capacity race, duplicate request, PIN gate, seat invariant, discovery load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"campuspool/internal/infra"
	"campuspool/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	tokens *infra.JWTVerifier
	db     *pgxpool.Pool
	redis  *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) (*Runner, error) {
	tokens, err := infra.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("bench needs the API's jwt secret: %w", err)
	}
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		tokens: tokens,
	}, nil
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: pingPostgres},
		{Name: "Env: Redis connect", Run: pingRedis},
		{Name: "API: health", Run: health},
		{Name: "Capacity: concurrent accepts never overbook", Run: capacityRace},
		{Name: "Capacity: concurrent submissions never overbook", Run: submissionRace},
		{Name: "Request: duplicate submission rejected", Run: duplicateRequest},
		{Name: "Start: wrong PIN rejected", Run: pinGate},
		{Name: "Store: committed seats within capacity", Run: seatInvariant},
		{Name: "Perf: discovery listing", Run: discoveryLoad},
	}
}

func pingPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func health(ctx context.Context, r *Runner) Result {
	start := time.Now()
	code, _, err := r.call(ctx, http.MethodGet, "/api/health", types.Caller{}, nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%d", code)}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

// capacityRace submits Concurrency requests, then accepts all of them at once.
func capacityRace(ctx context.Context, r *Runner) Result {
	driver := newCaller(types.RoleDriver)
	rideID, err := r.createRide(ctx, driver, r.cfg.Seats)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	reqIDs := make([]string, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		id, err := r.submit(ctx, newCaller(types.RoleRider), rideID)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		reqIDs = append(reqIDs, id)
	}

	var accepted, full, other atomic.Int64
	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range reqIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			code, _, err := r.call(ctx, http.MethodPut, "/api/ride-requests/"+id, driver, map[string]any{"action": "accept"})
			switch {
			case err != nil:
				other.Add(1)
			case code == http.StatusOK:
				accepted.Add(1)
			case code == http.StatusConflict:
				full.Add(1)
			default:
				other.Add(1)
			}
		}(id)
	}
	wg.Wait()

	note := fmt.Sprintf("accepted=%d rejected=%d other=%d seats=%d", accepted.Load(), full.Load(), other.Load(), r.cfg.Seats)
	want := int64(min(r.cfg.Seats, r.cfg.Concurrency))
	if accepted.Load() != want || other.Load() != 0 {
		return Result{Status: statusFail, Latency: time.Since(start), Note: note}
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: note}
}

// submissionRace fills the ride with accepts, then races new submissions against it.
func submissionRace(ctx context.Context, r *Runner) Result {
	driver := newCaller(types.RoleDriver)
	rideID, err := r.createRide(ctx, driver, 1)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	first, err := r.submit(ctx, newCaller(types.RoleRider), rideID)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code, body, err := r.call(ctx, http.MethodPut, "/api/ride-requests/"+first, driver, map[string]any{"action": "accept"}); err != nil || code != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("accept status=%d err=%v body=%v", code, err, body)}
	}

	var created atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.submit(ctx, newCaller(types.RoleRider), rideID); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	if created.Load() != 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("created=%d on a full ride", created.Load())}
	}
	return Result{Status: statusPass}
}

func duplicateRequest(ctx context.Context, r *Runner) Result {
	driver := newCaller(types.RoleDriver)
	rideID, err := r.createRide(ctx, driver, 2)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	rider := newCaller(types.RoleRider)
	if _, err := r.submit(ctx, rider, rideID); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	code, _, err := r.call(ctx, http.MethodPost, "/api/ride-requests", rider, map[string]any{"ride_id": rideID})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusConflict {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%d", code)}
	}
	return Result{Status: statusPass}
}

func pinGate(ctx context.Context, r *Runner) Result {
	driver := newCaller(types.RoleDriver)
	rideID, err := r.createRide(ctx, driver, 1)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	reqID, err := r.submit(ctx, newCaller(types.RoleRider), rideID)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	code, body, err := r.call(ctx, http.MethodPut, "/api/ride-requests/"+reqID, driver, map[string]any{"action": "accept"})
	if err != nil || code != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("accept status=%d err=%v", code, err)}
	}
	pin, _ := nested(body, "request", "ride_pin").(string)
	wrong := "0000"
	if pin == wrong {
		wrong = "1111"
	}
	code, _, err = r.call(ctx, http.MethodPost, "/api/ride-requests/"+reqID+"/start", driver, map[string]any{"pin": wrong})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusUnprocessableEntity {
		return Result{Status: statusFail, Note: fmt.Sprintf("wrong pin status=%d", code)}
	}
	code, _, err = r.call(ctx, http.MethodPost, "/api/ride-requests/"+reqID+"/start", driver, map[string]any{"pin": pin})
	if err != nil || code != http.StatusOK {
		return Result{Status: statusFail, Note: fmt.Sprintf("right pin status=%d err=%v", code, err)}
	}
	return Result{Status: statusPass}
}

const overbookedRides = `
SELECT count(*) FROM rides r
WHERE r.status = 'active'
  AND (SELECT count(*) FROM ride_requests rr
       WHERE rr.ride_id = r.id AND rr.status IN ('accepted', 'ongoing')) > r.available_seats`

func seatInvariant(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	var n int
	if err := r.db.QueryRow(ctx, overbookedRides).Scan(&n); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if n > 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("%d overbooked rides", n)}
	}
	return Result{Status: statusPass}
}

func discoveryLoad(ctx context.Context, r *Runner) Result {
	rider := newCaller(types.RoleRider)
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.call(ctx, http.MethodGet, "/api/rides", rider, nil)
				if err != nil || code != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func newCaller(role types.Role) types.Caller {
	return types.Caller{ID: types.ID("bench-" + uuid.NewString()), Role: role, Verification: types.VerificationVerified}
}

func (r *Runner) createRide(ctx context.Context, driver types.Caller, seats int) (string, error) {
	code, body, err := r.call(ctx, http.MethodPost, "/api/rides", driver, map[string]any{
		"source":          "Bench Gate",
		"destination":     "Bench Station",
		"date":            time.Now().Format("2006-01-02"),
		"time":            "08:00",
		"available_seats": seats,
		"estimated_cost":  10,
	})
	if err != nil {
		return "", err
	}
	if code != http.StatusCreated {
		return "", fmt.Errorf("create ride status=%d body=%v", code, body)
	}
	id, _ := nested(body, "ride", "id").(string)
	return id, nil
}

func (r *Runner) submit(ctx context.Context, rider types.Caller, rideID string) (string, error) {
	code, body, err := r.call(ctx, http.MethodPost, "/api/ride-requests", rider, map[string]any{"ride_id": rideID})
	if err != nil {
		return "", err
	}
	if code != http.StatusCreated {
		return "", fmt.Errorf("submit status=%d body=%v", code, body)
	}
	id, _ := nested(body, "request", "id").(string)
	return id, nil
}

// call sends an authenticated JSON request; a zero caller sends no token.
func (r *Runner) call(ctx context.Context, method, path string, who types.Caller, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if who.ID != "" {
		tok, err := r.tokens.Sign(who, time.Hour)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out, nil
}

func nested(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}
