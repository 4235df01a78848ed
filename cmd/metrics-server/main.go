// Command metrics-server runs the Prometheus /metrics endpoint as a
// standalone sidecar process, keeping metrics exposition separate from the
// request-serving process.
package main

import (
	"log"
	"net/http"
	"os"

	"legal-contract-review/internal/metricsreg"
)

func main() {
	addr := getenv("METRICS_ADDR", ":9109")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsreg.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	log.Printf("metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
