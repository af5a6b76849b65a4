package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adirajukashyap/drawd/internal/api"
	"github.com/adirajukashyap/drawd/internal/history"
	"github.com/adirajukashyap/drawd/internal/room"
	"github.com/adirajukashyap/drawd/internal/ws"
)

func main() {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded .env file")
	}

	if level, err := logrus.ParseLevel(os.Getenv("DRAWD_LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// DRAWD_DB defaults to in-memory, so nothing outlives the process.
	dsn := os.Getenv("DRAWD_DB")
	store, err := history.Open(dsn)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open history store")
	}
	defer store.Close()

	registry := room.NewRegistry()
	hub := ws.NewHub(registry, store)
	go hub.Run()

	apiHandler := api.New(hub, registry, store)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)

	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logrus.Info("Shutting down server...")
		store.Close()
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logrus.WithFields(logrus.Fields{"port": port, "db": dsnLabel(dsn)}).Info("drawd server starting")
	logrus.Info("Endpoints:")
	logrus.Info("  - WebSocket: /ws?room={roomId}&name={displayName}")
	logrus.Info("  - Health:    GET /health")
	logrus.Info("  - Stats:     GET /api/stats")
	logrus.Info("  - Rooms:     GET /api/rooms")
	logrus.Info("  - Room:      GET /api/rooms/{id}")
	logrus.Info("  - Ops:       GET /api/rooms/{id}/ops")
	logrus.Info("  - Image:     GET /api/rooms/{id}/image?width=W&height=H")

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logrus.WithError(err).Fatal("ListenAndServe")
	}
}

func dsnLabel(dsn string) string {
	if dsn == "" {
		return history.MemoryDSN
	}
	return dsn
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
