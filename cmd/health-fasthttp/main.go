package main

import (
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// Lightweight health sidecar: polls the server's /readyz and serves the
// cached verdict locally so load balancers never touch the main listener.
func main() {
	addr := flag.String("addr", ":8081", "listen address for the health probe")
	target := flag.String("target", "http://127.0.0.1:8080/readyz", "readiness URL to poll")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	var ready atomic.Bool
	client := &fasthttp.Client{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second}

	go func() {
		for {
			code, _, err := client.GetTimeout(nil, *target, 2*time.Second)
			ready.Store(err == nil && code == fasthttp.StatusOK)
			time.Sleep(*interval)
		}
	}()

	h := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			if ready.Load() {
				ctx.SetStatusCode(fasthttp.StatusOK)
				_, _ = ctx.WriteString("{\"status\":\"ok\"}")
			} else {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString("{\"status\":\"not ready\"}")
			}
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	fmt.Printf("health probe listening on %s (target %s)\n", *addr, *target)
	srv := &fasthttp.Server{
		Handler:            h,
		Name:               "pairdb-health-probe",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health probe exit: %v\n", err)
	}
}
