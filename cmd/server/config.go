package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-fileserver/server"
)

const configFileName = "fileserver.json"

type FileServerConfig struct {
	Addr                 string   `json:"addr"`
	AdminAddr            string   `json:"admin_addr"`
	Root                 string   `json:"root"`
	UploadDir            string   `json:"upload_dir"`
	AuditLog             string   `json:"audit_log"`
	MaxConnections       int      `json:"max_connections"`
	DownloadChunkSize    int      `json:"download_chunk_size"`
	UploadBufferSize     int      `json:"upload_buffer_size"`
	AllowedExtensions    []string `json:"allowed_extensions"`
	ConfinePaths         *bool    `json:"confine_paths"`
	SendNotImplemented   *bool    `json:"send_not_implemented"`
	UploadLineTerminator string   `json:"upload_line_terminator"`
	ReadTimeoutMs        int      `json:"read_timeout_ms"`
	HotReload            bool     `json:"hot_reload"`
	ServerName           string   `json:"server_name"`
}

func boolPtr(b bool) *bool { return &b }

// defaultConfig returns the settings used when fileserver.json is missing
// or unreadable.
func defaultConfig() *FileServerConfig {
	return &FileServerConfig{
		Addr:                 ":6789",
		AdminAddr:            "127.0.0.1:6790",
		Root:                 "root",
		UploadDir:            "uploaded",
		AuditLog:             "server.log",
		MaxConnections:       64,
		DownloadChunkSize:    server.DefaultChunkSize,
		UploadBufferSize:     server.DefaultUploadBufferSize,
		AllowedExtensions:    append([]string(nil), server.DefaultAllowedExtensions...),
		ConfinePaths:         boolPtr(true),
		SendNotImplemented:   boolPtr(true),
		UploadLineTerminator: "crlf",
		ReadTimeoutMs:        0,
		HotReload:            false,
		ServerName:           "go-fileserver/1.0",
	}
}

// readConfig parses and validates path. Invalid individual fields are
// logged and replaced by their defaults; only an unreadable or malformed
// file is an error.
func readConfig(path string) (*FileServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg FileServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	validateConfig(&cfg)
	return &cfg, nil
}

// loadConfig tries to read fileserver.json from projectRoot;
// falls back to defaults on any error.
func loadConfig(projectRoot string) *FileServerConfig {
	cfgPath := filepath.Join(projectRoot, configFileName)

	cfg, err := readConfig(cfgPath)
	if err != nil {
		log.Printf("[config] no usable %s at %s, using defaults: %v", configFileName, cfgPath, err)
		return defaultConfig()
	}
	return cfg
}

func validateConfig(cfg *FileServerConfig) {
	def := defaultConfig()

	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Root == "" {
		log.Printf("[config] root is empty, falling back to %q", def.Root)
		cfg.Root = def.Root
	}
	if cfg.UploadDir == "" {
		log.Printf("[config] upload_dir is empty, falling back to %q", def.UploadDir)
		cfg.UploadDir = def.UploadDir
	}
	if cfg.AuditLog == "" {
		cfg.AuditLog = def.AuditLog
	}

	if cfg.MaxConnections <= 0 {
		log.Printf("[config] max_connections=%d is invalid, falling back to %d", cfg.MaxConnections, def.MaxConnections)
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.DownloadChunkSize <= 0 {
		log.Printf("[config] download_chunk_size=%d is invalid, falling back to %d", cfg.DownloadChunkSize, def.DownloadChunkSize)
		cfg.DownloadChunkSize = def.DownloadChunkSize
	}
	if cfg.UploadBufferSize <= 0 {
		log.Printf("[config] upload_buffer_size=%d is invalid, falling back to %d", cfg.UploadBufferSize, def.UploadBufferSize)
		cfg.UploadBufferSize = def.UploadBufferSize
	}
	if cfg.ReadTimeoutMs < 0 {
		log.Printf("[config] read_timeout_ms=%d is invalid, disabling the read timeout", cfg.ReadTimeoutMs)
		cfg.ReadTimeoutMs = 0
	}

	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = def.AllowedExtensions
		log.Printf("[config] allowed_extensions missing, using defaults: %v", cfg.AllowedExtensions)
	} else {
		for i, ext := range cfg.AllowedExtensions {
			if !strings.HasPrefix(ext, ".") {
				log.Printf("[config] allowed_extensions[%d]=%q does not start with '.', fixing", i, ext)
				cfg.AllowedExtensions[i] = "." + ext
			}
		}
	}

	if cfg.ConfinePaths == nil {
		cfg.ConfinePaths = def.ConfinePaths
	}
	if !*cfg.ConfinePaths {
		log.Printf("[config] confine_paths=false: request paths and upload names are used verbatim")
	}
	if cfg.SendNotImplemented == nil {
		cfg.SendNotImplemented = def.SendNotImplemented
	}

	switch strings.ToLower(cfg.UploadLineTerminator) {
	case "crlf", "lf":
		cfg.UploadLineTerminator = strings.ToLower(cfg.UploadLineTerminator)
	default:
		if cfg.UploadLineTerminator != "" {
			log.Printf("[config] upload_line_terminator=%q is invalid, falling back to %q", cfg.UploadLineTerminator, def.UploadLineTerminator)
		}
		cfg.UploadLineTerminator = def.UploadLineTerminator
	}

	if cfg.ServerName == "" {
		cfg.ServerName = def.ServerName
	}
}

// applyEnv lets FILESERVER_ADDR and FILESERVER_ADMIN_ADDR override the file.
func (c *FileServerConfig) applyEnv() {
	if addr := os.Getenv("FILESERVER_ADDR"); addr != "" {
		c.Addr = addr
	}
	if addr, ok := os.LookupEnv("FILESERVER_ADMIN_ADDR"); ok {
		c.AdminAddr = addr
	}
}

// toOptions turns the config into server options. Relative directories are
// taken from projectRoot.
func (c *FileServerConfig) toOptions(projectRoot string) server.Options {
	term := "\r\n"
	if c.UploadLineTerminator == "lf" {
		term = "\n"
	}

	return server.Options{
		Addr:               c.Addr,
		Root:               underRoot(projectRoot, c.Root),
		UploadDir:          underRoot(projectRoot, c.UploadDir),
		MaxConnections:     c.MaxConnections,
		ChunkSize:          c.DownloadChunkSize,
		UploadBufferSize:   c.UploadBufferSize,
		AllowedExtensions:  c.AllowedExtensions,
		ConfinePaths:       *c.ConfinePaths,
		SendNotImplemented: *c.SendNotImplemented,
		LineTerminator:     term,
		ServerName:         c.ServerName,
		ReadTimeout:        time.Duration(c.ReadTimeoutMs) * time.Millisecond,
	}
}

func underRoot(projectRoot, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectRoot, p)
}
