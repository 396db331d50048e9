// Package geozone implements the OpenDMTP geozone file loader collaborator
// (§6 "geozone file loader"): a simple circular-zone table, loaded from a
// flat text file and kept in sync with file changes on disk.
package geozone

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/gpsenc"
)

// Error is the sentinel error type for geozone loading failures.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrBadLine    Error = "geozone: malformed line"
	ErrFileNotSet Error = "geozone: no file configured"
)

// Zone is a single named circular region: a client is considered "in"
// the zone when within RadiusMeters of Center.
type Zone struct {
	ID           uint32
	Center       gpsenc.Point
	RadiusMeters float64
}

// Table is a versioned, concurrency-safe set of zones loaded from a
// file. The version increments on every successful reload so callers
// can detect staleness without comparing the full zone list (mirrors
// the property store's GeoZone-version key).
type Table struct {
	mutex   sync.RWMutex
	path    string
	version uint32
	zones   map[uint32]Zone
	logger  logrus.FieldLogger
}

// New returns an empty Table not yet bound to a file.
func New(logger logrus.FieldLogger) *Table {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Table{zones: make(map[uint32]Zone), logger: logger}
}

// Load reads path and replaces the table's contents. Each non-blank,
// non-comment line is "id,lat,lon,radiusMeters".
func (t *Table) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zones := make(map[uint32]Zone)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		z, err := parseZoneLine(line)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		zones[z.ID] = z
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	t.mutex.Lock()
	t.path = path
	t.zones = zones
	t.version++
	t.mutex.Unlock()
	return nil
}

func parseZoneLine(line string) (Zone, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return Zone{}, ErrBadLine
	}
	id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: id %q", ErrBadLine, parts[0])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: lat %q", ErrBadLine, parts[1])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: lon %q", ErrBadLine, parts[2])
	}
	radius, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return Zone{}, fmt.Errorf("%w: radius %q", ErrBadLine, parts[3])
	}
	return Zone{ID: uint32(id), Center: gpsenc.Point{Latitude: lat, Longitude: lon}, RadiusMeters: radius}, nil
}

// Version returns the table's current reload generation.
func (t *Table) Version() uint32 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.version
}

// Lookup returns the zone registered under id, if any.
func (t *Table) Lookup(id uint32) (Zone, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	z, ok := t.zones[id]
	return z, ok
}

// Contains reports whether pt falls within any zone in the table, and
// if so which one.
func (t *Table) Contains(pt gpsenc.Point) (Zone, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	for _, z := range t.zones {
		if haversineMeters(pt, z.Center) <= z.RadiusMeters {
			return z, true
		}
	}
	return Zone{}, false
}

const earthRadiusMeters = 6371000.0

func haversineMeters(a, b gpsenc.Point) float64 {
	lat1, lon1 := degToRad(a.Latitude), degToRad(a.Longitude)
	lat2, lon2 := degToRad(b.Latitude), degToRad(b.Longitude)
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

// Watch starts an fsnotify watcher on the directory containing the
// table's currently loaded file and reloads on every write event,
// mirroring the pack's config-file live-reload pattern. It runs until
// ctx is done or the watcher errors out.
func (t *Table) Watch(ctx context.Context) error {
	t.mutex.RLock()
	path := t.path
	t.mutex.RUnlock()
	if path == "" {
		return ErrFileNotSet
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := t.Load(path); err != nil {
				t.logger.WithError(err).WithField("path", path).Warn("geozone reload failed")
				continue
			}
			t.logger.WithField("version", t.Version()).Info("geozone table reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.WithError(err).Warn("geozone watcher error")
		}
	}
}
