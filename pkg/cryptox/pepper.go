package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2         // Iteration count
	parallelism = 1         // Number of threads
	keyLength   = 32        // Length of the generated hash
	saltLength  = 16        // Length of the salt
)

var (
	pepperMu   sync.Mutex
	pepper     string
	pepperFile string
)

// SetPepperPath points the package at the file holding the pepper. When the
// file does not exist yet a fresh pepper is generated and written there on
// first use.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

// GetPepper returns the process-wide pepper, loading or generating it on
// first use. Without a configured path the pepper is held in memory only,
// which means hashes do not survive a restart - fine for tests, not for
// production.
func GetPepper() string {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper
	}

	if pepperFile == "" {
		pepper = newPepper()
		slog.Warn("no pepper file configured, using ephemeral in-memory pepper")
		return pepper
	}

	loaded, err := loadOrGeneratePepper(pepperFile)
	if err != nil {
		slog.Error("failed to load or generate pepper", slog.Any("err", err))
		os.Exit(1)
	}
	pepper = loaded
	return pepper
}

func newPepper() string {
	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("failed to generate pepper", slog.Any("err", err))
		os.Exit(1)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// loadOrGeneratePepper loads the pepper from a file or generates one if not
// found.
func loadOrGeneratePepper(file string) (string, error) {
	file = filepath.Clean(file)
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return "", err
	}

	if _, err := os.Stat(file); os.IsNotExist(err) {
		fresh := newPepper()
		if err := os.WriteFile(file, []byte(fresh), 0600); err != nil {
			return "", err
		}
		return fresh, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
