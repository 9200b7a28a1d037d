package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ShellManifest describes the application shell pre-cached by the edge cache.
// It can be overridden from a TOML file:
//
//	version      = "v4"
//	prefix       = "mess-app"
//	offline_page = "/offline.html"
//	urls         = ["/", "/dashboard", "/login", "/offline.html", "/manifest.json"]
type ShellManifest struct {
	Version     string   `toml:"version"`
	Prefix      string   `toml:"prefix"`
	OfflinePage string   `toml:"offline_page"`
	URLs        []string `toml:"urls"`
}

// DefaultShellManifest returns the built-in shell.
func DefaultShellManifest() ShellManifest {
	return ShellManifest{
		Version:     "v3",
		Prefix:      "mess-app",
		OfflinePage: "/offline.html",
		URLs:        []string{"/", "/dashboard", "/login", "/offline.html", "/manifest.json"},
	}
}

// Merge returns m with every non-empty field of o applied on top.
func (m ShellManifest) Merge(o ShellManifest) ShellManifest {
	if o.Version != "" {
		m.Version = o.Version
	}
	if o.Prefix != "" {
		m.Prefix = o.Prefix
	}
	if o.OfflinePage != "" {
		m.OfflinePage = o.OfflinePage
	}
	if len(o.URLs) > 0 {
		m.URLs = append([]string(nil), o.URLs...)
	}
	return m
}

// Validate checks the manifest is installable: a name, at least one absolute
// path, and an offline page that is itself pre-cached.
func (m ShellManifest) Validate() error {
	if strings.TrimSpace(m.Prefix) == "" || strings.TrimSpace(m.Version) == "" {
		return errors.New("prefix and version must not be empty")
	}
	if len(m.URLs) == 0 {
		return errors.New("urls must not be empty")
	}
	found := false
	for _, u := range m.URLs {
		if !strings.HasPrefix(u, "/") {
			return fmt.Errorf("url %q must start with '/'", u)
		}
		if u == m.OfflinePage {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("offline page %q must be listed in urls", m.OfflinePage)
	}
	return nil
}

// ReadManifest decodes a ShellManifest from r. Unknown keys are rejected.
func ReadManifest(r io.Reader) (ShellManifest, error) {
	var m ShellManifest
	md, err := toml.NewDecoder(r).Decode(&m)
	if err != nil {
		return m, fmt.Errorf("failed to decode shell manifest: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return m, fmt.Errorf("unknown shell manifest keys: %v", undecoded)
	}
	return m, nil
}

// LoadManifest reads a ShellManifest from the TOML file at path.
func LoadManifest(path string) (ShellManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return ShellManifest{}, fmt.Errorf("failed to open shell manifest: %w", err)
	}
	defer f.Close()

	m, err := ReadManifest(f)
	if err != nil {
		return ShellManifest{}, fmt.Errorf("reading shell manifest from %s: %w", path, err)
	}
	return m, nil
}
