// README: Bench runner against a live API; checks lifecycle invariants under concurrency and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench, err := NewRunner(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case statusPass:
			pass++
		case statusFail:
			fail++
		case statusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)
	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL     string
	DSN         string
	RedisAddr   string
	JWTSecret   string
	JWTIssuer   string
	Strict      bool
	Timeout     time.Duration
	Concurrency int
	Seats       int
	Duration    time.Duration
}

// loadConfig takes defaults from CAMPUSPOOL_BENCH_* and lets flags override them.
func loadConfig() Config {
	v := viper.New()
	v.SetEnvPrefix("CAMPUSPOOL_BENCH")
	v.AutomaticEnv()
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("dsn", "")
	v.SetDefault("redis", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "campuspool")
	v.SetDefault("strict", false)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("concurrency", 20)
	v.SetDefault("seats", 3)
	v.SetDefault("duration", 10*time.Second)

	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", v.GetString("base_url"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", v.GetString("dsn"), "Postgres DSN for invariant checks (optional)")
	flag.StringVar(&cfg.RedisAddr, "redis", v.GetString("redis"), "Redis address (optional)")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", v.GetString("jwt_secret"), "HS256 secret shared with the API")
	flag.StringVar(&cfg.JWTIssuer, "jwt-issuer", v.GetString("jwt_issuer"), "JWT issuer expected by the API")
	flag.BoolVar(&cfg.Strict, "strict", v.GetBool("strict"), "Fail on skipped cases")
	flag.DurationVar(&cfg.Timeout, "timeout", v.GetDuration("timeout"), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", v.GetInt("concurrency"), "Concurrent riders / workers")
	flag.IntVar(&cfg.Seats, "seats", v.GetInt("seats"), "Seats offered in the capacity race")
	flag.DurationVar(&cfg.Duration, "duration", v.GetDuration("duration"), "Duration of the load case")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}
