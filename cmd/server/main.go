package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go-fileserver/server"

	"github.com/dustin/go-humanize"
)

// getProjectRoot walks up from the working directory to the first directory
// holding a go.mod, falling back to the working directory itself.
func getProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd
		}
		dir = parent
	}
}

func main() {
	root := getProjectRoot()
	cfg := loadConfig(root)
	cfg.applyEnv()

	auditPath := underRoot(root, cfg.AuditLog)
	audit, err := server.OpenAuditLog(auditPath)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}

	opts := cfg.toOptions(root)
	srv := server.NewServer(opts, audit)

	if cfg.HotReload {
		cfgPath := filepath.Join(root, configFileName)
		reload := func() (server.Options, error) {
			next, err := readConfig(cfgPath)
			if err != nil {
				return server.Options{}, err
			}
			next.applyEnv()
			return next.toOptions(root), nil
		}
		if err := srv.EnableHotReload(cfgPath, reload); err != nil {
			log.Println("Hot reload disabled:", err)
		} else {
			log.Println("Hot reload enabled")
		}
	}

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		secret := []byte(os.Getenv("FILESERVER_ADMIN_JWT_SECRET"))
		adminSrv = &http.Server{
			Addr:    cfg.AdminAddr,
			Handler: newAdminMux(srv, secret),
		}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("[admin] listen error: %v", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT/SIGTERM
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-shutdownCh
		log.Println("[shutdown] signal received, finishing in-flight connections...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[shutdown] file server shutdown error: %v", err)
		} else {
			log.Println("[shutdown] file server shut down cleanly")
		}
		if adminSrv != nil {
			if err := adminSrv.Shutdown(ctx); err != nil {
				log.Printf("[shutdown] admin server shutdown error: %v", err)
			}
		}
	}()

	// Startup banner / config summary
	log.Println("=============================================")
	log.Printf(" go-fileserver listening on %s", opts.Addr)
	log.Println("=============================================")
	log.Printf(" Root: %s", opts.Root)
	log.Printf(" Upload dir: %s", opts.UploadDir)
	log.Printf(" Audit log: %s", auditPath)
	log.Printf(" Max connections: %d", opts.MaxConnections)
	log.Printf(" Download chunk: %s", humanize.Bytes(uint64(opts.ChunkSize)))
	log.Printf(" Upload buffer: %s", humanize.Bytes(uint64(opts.UploadBufferSize)))
	log.Printf(" Allowed uploads: %v", opts.AllowedExtensions)
	log.Printf(" Confine paths: %v", opts.ConfinePaths)
	if adminSrv != nil {
		log.Printf(" Admin: http://%s/__fileserver/health", cfg.AdminAddr)
	}
	log.Println("=============================================")

	// Blocks until shutdown
	if err := srv.ListenAndServe(context.Background()); err != nil && !errors.Is(err, server.ErrServerClosed) {
		log.Fatalf("[server] listen error: %v", err)
	}

	<-drained
	if err := audit.Close(); err != nil {
		log.Printf("[shutdown] audit log close error: %v", err)
	}
}
