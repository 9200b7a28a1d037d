package edge

import "github.com/tbourn/go-mess-offline/internal/config"

// Manifest lists the application shell a worker generation pre-caches. It is
// the configured shell manifest, owned by the worker.
type Manifest config.ShellManifest

// ManifestFrom copies a configured shell so later edits to the configuration
// never reach a running worker.
func ManifestFrom(s config.ShellManifest) Manifest {
	m := Manifest(s)
	m.URLs = append([]string(nil), s.URLs...)
	return m
}

// CacheName is the generation name, e.g. "mess-app-v3". Changing Version is
// the only way to evict a previous generation.
func (m Manifest) CacheName() string {
	return m.Prefix + "-" + m.Version
}

// Validate checks that the manifest can be installed.
func (m Manifest) Validate() error {
	return config.ShellManifest(m).Validate()
}
