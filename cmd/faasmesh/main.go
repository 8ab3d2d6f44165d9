package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/net/context"

	"github.com/faasmesh/faasmesh/internal/api"
	"github.com/faasmesh/faasmesh/internal/cache"
	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/metrics"
	"github.com/faasmesh/faasmesh/internal/mpi"
	"github.com/faasmesh/faasmesh/internal/registration"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/faasmesh/faasmesh/internal/snapshot"
	"github.com/faasmesh/faasmesh/internal/state"
	"github.com/faasmesh/faasmesh/utils"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func startAPIServer(e *echo.Echo) {
	e.Use(middleware.Recover())

	// Routes
	e.GET("/status", api.GetServerStatus)
	e.GET("/result/:id", api.PollResult)
	e.GET("/graph/:id", api.GetExecGraph)
	e.POST("/flush", api.Flush)

	// Start server
	portNumber := config.GetInt(config.API_PORT, 1323)
	e.HideBanner = true

	if err := e.Start(fmt.Sprintf(":%d", portNumber)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal("shutting down the server")
	}
}

func cacheSetup() {
	cache.Size = config.GetInt(config.CACHE_SIZE, 100)

	d := config.GetInt(config.CACHE_CLEANUP, 60)
	cache.CleanupInterval = time.Duration(d) * time.Second

	d = config.GetInt(config.CACHE_ITEM_EXPIRATION, 60)
	cache.DefaultExp = time.Duration(d) * time.Second

	//cache first creation
	cache.GetCacheInstance()
}

func registerTerminationHandler(r *registration.Registry, monitor *registration.Monitor,
	e *echo.Echo, servers ...interface{ Stop() }) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		sig := <-c
		fmt.Printf("Got %s signal. Terminating...\n", sig)

		monitor.Stop()

		// deregister from etcd; server should be unreachable
		if r != nil {
			if err := r.Deregister(); err != nil {
				log.Printf("Deregistration failed: %v", err)
			}
		}

		scheduler.GetScheduler().Shutdown()

		for _, s := range servers {
			s.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			e.Logger.Fatal(err)
		}

		os.Exit(0)
	}()
}

func main() {
	configFileName := ""
	if len(os.Args) > 1 {
		configFileName = os.Args[1]
	}
	config.ReadConfiguration(configFileName)

	cacheSetup()

	hostAddress := config.GetString(config.HOST_ADDRESS, "")
	if hostAddress == "" {
		ip, err := utils.GetOutboundIp()
		if err != nil {
			log.Fatal(err)
		}
		hostAddress = ip.String()
	}

	var store state.Store
	if config.GetBool(config.STATE_LOCAL, false) {
		store = state.NewLocalStore()
	} else {
		etcdStore, err := state.NewEtcdStore()
		if err != nil {
			log.Fatal(err)
		}
		store = etcdStore
	}

	sched := scheduler.Init(hostAddress, store)
	if err := sched.AddHostToGlobalSet(hostAddress); err != nil {
		log.Fatal(err)
	}

	bindAddr := config.GetString(config.BIND_ADDRESS, "0.0.0.0")

	functionServer := scheduler.NewFunctionCallServer(sched)
	if err := functionServer.Start(bindAddr); err != nil {
		log.Fatal(err)
	}
	snapshotServer := snapshot.NewServer()
	if err := snapshotServer.Start(bindAddr); err != nil {
		log.Fatal(err)
	}
	mpiServer := mpi.NewServer()
	if err := mpiServer.Start(bindAddr); err != nil {
		log.Fatal(err)
	}

	// Visible to peers through etcd unless running purely locally
	var registry *registration.Registry
	if !config.GetBool(config.STATE_LOCAL, false) {
		registry = registration.NewRegistry(hostAddress, store)
		if err := registry.RegisterToEtcd(); err != nil {
			log.Fatal(err)
		}
	} else {
		registry = registration.NewRegistry(hostAddress, store)
	}

	monitor := registration.NewMonitor(registry, sched)
	monitor.Start()

	go metrics.Init()

	e := echo.New()

	// Register a signal handler to cleanup things on termination
	registerTerminationHandler(registry, monitor, e, functionServer, snapshotServer, mpiServer)

	log.Printf("Host %s ready.", hostAddress)
	startAPIServer(e)
}
