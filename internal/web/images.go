package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const maxCachedImages = 500

var imageExts = []string{".jpg", ".png", ".webp"}

// imageIndex resolves definition models to files under <dir>/img, served
// at /devices/img/. Lookups, including misses, are cached.
type imageIndex struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string // model -> URL, "" when there is no image
}

func newImageIndex(devicesDir string) *imageIndex {
	if devicesDir == "" {
		return nil
	}
	return &imageIndex{dir: filepath.Join(devicesDir, "img"), cache: make(map[string]string)}
}

// handler serves the image directory.
func (x *imageIndex) handler() http.Handler {
	return http.StripPrefix("/devices/img/", http.FileServer(http.Dir(x.dir)))
}

// imageFileName maps a model to a file stem: spaces become _ and * becomes
// x. Models that could escape the directory have no image.
func imageFileName(model string) (string, bool) {
	name := strings.NewReplacer(" ", "_", "*", "x").Replace(model)
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

// URL returns the image URL for model, or "".
func (x *imageIndex) URL(model string) string {
	if x == nil {
		return ""
	}
	x.mu.RLock()
	url, ok := x.cache[model]
	x.mu.RUnlock()
	if ok {
		return url
	}

	if name, ok := imageFileName(model); ok {
		for _, ext := range imageExts {
			if _, err := os.Stat(filepath.Join(x.dir, name+ext)); err == nil {
				url = "/devices/img/" + name + ext
				break
			}
		}
	}

	x.mu.Lock()
	if len(x.cache) >= maxCachedImages {
		clear(x.cache)
	}
	x.cache[model] = url
	x.mu.Unlock()
	return url
}
