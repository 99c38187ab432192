package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Error loading .env file: %v", err)
	}

	port := 3000
	if raw := os.Getenv("PORT"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid PORT %q: %v", raw, err)
		}
		port = p
	}

	collector := NewCollector(os.Getenv("API_KEY"), time.Duration(envInt("SESSION_TIMEOUT", 30))*time.Minute)
	router := SetupRouter(collector)

	address := fmt.Sprintf(":%d", port)
	log.Printf("🚀 Collector listening at http://localhost%s/api", address)

	err := http.ListenAndServe(address, handlers.LoggingHandler(os.Stdout, handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)))
	if err != nil {
		log.Fatalf("Failed to start server: %v\n", err)
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Ignoring invalid %s %q", key, raw)
		return fallback
	}
	return v
}
