package main

import (
	"log"
	"net/http"
	"os"

	"kado/config"
	"kado/core"
	"kado/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if core.FFmpegAvailable() {
		log.Printf("ffmpeg is available")
	} else {
		log.Printf("Warning: ffmpeg is NOT available, audio extraction will fail")
	}
	log.Printf("Providers: transcribe=%s extract=%s mock_mode=%v", cfg.TranscribeProvider, cfg.ExtractProvider, cfg.MockMode)

	srv := server.New(cfg)
	mux := http.NewServeMux()
	srv.Routes(mux)

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}
	log.Printf("Server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}
