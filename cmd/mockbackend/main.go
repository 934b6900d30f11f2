// Package main runs the fake editorial backend as a standalone server for local
// development and end-to-end testing.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"os/signal"
	"syscall"
	"time"

	"github.com/sipico/editor-gateway/internal/testutil/mockbackend"
)

// getPort returns the port from the PORT environment variable or the default.
// The default matches the gateway's fallback backend URL.
func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	return port
}

// controlRoutes are the /_mock routes listed at startup.
var controlRoutes = []string{
	"POST   /_mock/stubs",
	"GET    /_mock/calls",
	"DELETE /_mock/reset",
}

// loadStubs registers the stubs listed in a JSON file, an array of
// {"method","path","status","contentType","body"} objects. It returns how many
// were loaded.
func loadStubs(path string, backend *mockbackend.Server) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read stub file: %w", err)
	}
	var stubs []mockbackend.StubRequest
	if err := json.Unmarshal(data, &stubs); err != nil {
		return 0, fmt.Errorf("failed to parse stub file: %w", err)
	}
	for i, st := range stubs {
		if st.Method == "" || !strings.HasPrefix(st.Path, "/") {
			return 0, fmt.Errorf("stub %d: method and path are required", i)
		}
	}
	for _, st := range stubs {
		status := st.Status
		if status == 0 {
			status = http.StatusOK
		}
		backend.StubRaw(strings.ToUpper(st.Method), st.Path, status, st.ContentType, st.Body)
	}
	return len(stubs), nil
}

// createHTTPServer creates an http.Server with the given port and handler.
func createHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupShutdownHandler closes httpServer on SIGINT or SIGTERM.
func setupShutdownHandler(httpServer *http.Server) <-chan bool {
	done := make(chan bool)
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down mock backend...")
		//nolint:errcheck
		httpServer.Close()
		close(done)
	}()
	return done
}

// runHealthCheck checks the local server. Returns 0 on success, 1 on failure.
func runHealthCheck() int {
	return doHealthCheck("http://localhost:" + getPort() + "/_mock/calls")
}

func doHealthCheck(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	port := getPort()
	backend := mockbackend.NewStandalone()
	if path := os.Getenv("MOCK_STUBS_FILE"); path != "" {
		n, err := loadStubs(path, backend)
		if err != nil {
			log.Fatalf("Failed to load stubs: %v", err)
		}
		log.Printf("loaded %d stubs from %s", n, path)
	}
	httpServer := createHTTPServer(port, backend.Handler())

	done := setupShutdownHandler(httpServer)

	log.Printf("mock backend listening on :%s", port)
	for _, route := range controlRoutes {
		log.Printf("  control: %s", route)
	}
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}

	<-done
	log.Println("mock backend stopped")
}
