// Benchmark tool: measures GET /users/{id} latency and QPS against a running
// server using a worker pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"userposts/internal/bench"
)

func main() {
	var cfg bench.Config
	flag.StringVar(&cfg.Addr, "addr", "http://localhost:3000", "server base URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 50, "number of concurrent workers")
	flag.IntVar(&cfg.Requests, "requests", 1000, "total number of requests")
	flag.IntVar(&cfg.Users, "users", 10, "user id space (1..users)")
	flag.Parse()

	rep, err := bench.Run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("benchmark failed: %v", err)
	}
	fmt.Printf("Target: %s\n", cfg.Addr)
	fmt.Print(rep)
}
