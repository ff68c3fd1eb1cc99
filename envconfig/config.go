// config.go - Haupt-Konfigurationsfunktionen fuer cnclip
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (CNCLIP_DEBUG)
// - Device: Gibt das Ziel-Device zurueck (CNCLIP_DEVICE)
// - MaxLength: Gibt die maximale Token-Laenge zurueck (CNCLIP_MAX_LENGTH)
// - NumThreads: Gibt die Worker-Anzahl zurueck (CNCLIP_NUM_THREADS)
// - Checkpoint/TextConfig/VisionConfig/Vocab: Modell-Dateien
// - Host/AllowedOrigins: Adresse und CORS-Origins fuer cnclip serve
//
// Die Werte werden nur vom CLI gelesen. Die Bibliothek selbst nimmt
// ausschliesslich explizite Optionen entgegen.
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Host gibt die Adresse fuer cnclip serve zurueck
// Konfigurierbar via CNCLIP_HOST
// Default: http://127.0.0.1:11500
func Host() *url.URL {
	defaultPort := "11500"

	s := Var("CNCLIP_HOST")
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte CORS-Origins zurueck
// Konfigurierbar via CNCLIP_ORIGINS (kommagetrennt), localhost ist immer erlaubt
func AllowedOrigins() (origins []string) {
	if s := Var("CNCLIP_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via CNCLIP_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CNCLIP_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Device gibt das Ziel-Device fuer tokenisierte Eingaben zurueck
// Konfigurierbar via CNCLIP_DEVICE
// Default: cpu
func Device() string {
	if s := strings.ToLower(Var("CNCLIP_DEVICE")); s != "" {
		return s
	}
	return "cpu"
}

// NumThreads gibt die maximale Anzahl paralleler Worker zurueck
// Konfigurierbar via CNCLIP_NUM_THREADS
// Default: Anzahl CPU-Kerne
func NumThreads() int {
	n := Uint("CNCLIP_NUM_THREADS", uint(runtime.NumCPU()))()
	if n == 0 {
		return runtime.NumCPU()
	}
	return int(n)
}

var (
	// MaxLength ist die maximale Token-Laenge fuer den Tokenizer
	MaxLength = Uint("CNCLIP_MAX_LENGTH", 77)

	// Checkpoint ist der Pfad zur Checkpoint-Datei
	Checkpoint = String("CNCLIP_CHECKPOINT")

	// TextConfig ist der Pfad zur JSON-Konfiguration des Text-Modells
	TextConfig = String("CNCLIP_TEXT_CONFIG")

	// VisionConfig ist der Pfad zur JSON-Konfiguration des Vision-Modells
	VisionConfig = String("CNCLIP_VISION_CONFIG")

	// Vocab ist der Pfad zur WordPiece-Vokabulardatei
	Vocab = String("CNCLIP_VOCAB")

	// MaxBatch begrenzt die Eingaben pro HTTP-Request
	MaxBatch = Uint("CNCLIP_MAX_BATCH", 64)
)

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
