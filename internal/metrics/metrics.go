package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/faasmesh/faasmesh/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Enabled bool
var registry = prometheus.NewRegistry()

var (
	LocalCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faasmesh_calls_local_total",
		Help: "Messages scheduled onto this host.",
	})
	SharedCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faasmesh_calls_shared_total",
		Help: "Messages dispatched to peer hosts.",
	})
	ForwardedCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faasmesh_calls_forwarded_total",
		Help: "Messages forwarded back to their master host.",
	})
	OverloadedCalls = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faasmesh_calls_overloaded_total",
		Help: "Messages placed locally beyond the core count.",
	})
	MpiMessagesRouted = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Name: "faasmesh_mpi_messages_total",
		Help: "MPI messages routed onto local world queues.",
	})
)

func Init() {
	if config.GetBool(config.METRICS_ENABLED, false) {
		log.Println("Metrics enabled.")
		Enabled = true
	} else {
		log.Println("Metrics disabled.")
		Enabled = false
		return
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true})
	http.Handle("/metrics", handler)
	port := config.GetInt(config.METRICS_PORT, 2112)
	http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
}
