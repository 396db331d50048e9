// Package property implements the OpenDMTP property-store collaborator:
// typed get/set access to the named keys the protocol engine reads at
// session open and writes back at session close (§3 "Session variables",
// §6 "Property store collaborator", §6 "Persisted state").
package property

import (
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known property keys used by the session state machines.
const (
	KeyBytesSent        = "comm.bytesSent"
	KeyBytesReceived    = "comm.bytesReceived"
	KeyMinXmitRate      = "comm.minXmitRate"
	KeyMinXmitDelay     = "comm.minXmitDelay"
	KeyMaxEventsSimplex = "comm.maxEventsSimplex"
	KeyMaxEventsDuplex  = "comm.maxEventsDuplex"
	KeySupportedEncodings = "comm.supportedEncodings"
	KeyCustomFormatsEnabled = "comm.customFormatsEnabled"
	KeyMotionStartInterval = "motion.startInterval"
	KeyInMotionInterval    = "motion.inMotionInterval"
	KeyDormantInterval     = "motion.dormantInterval"
	KeyGeoZoneVersion      = "geozone.version"
	KeyUniqueID            = "identity.uniqueId"
	KeyAccountID           = "identity.accountId"
	KeyDeviceID            = "identity.deviceId"
)

// Store is a mutex-guarded, YAML-backed key/value cache mirroring the
// reference implementation's "property file + property cache" split: an
// in-memory cache (this struct) that Load populates from and Save
// flushes back to a single on-disk YAML document. Store does not
// interpret the keys it holds — that's the protocol engine's job.
type Store struct {
	mutex  sync.RWMutex
	path   string
	values map[string]string
}

// New returns an empty Store not yet bound to a file.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Open loads path into a new Store. A missing file yields an empty
// Store rather than an error, matching first-run behavior.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Load reads the store's bound file and replaces the in-memory cache.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return err
	}
	s.mutex.Lock()
	s.values = values
	s.mutex.Unlock()
	return nil
}

// Save writes the in-memory cache to the store's bound file.
func (s *Store) Save() error {
	s.mutex.RLock()
	data, err := yaml.Marshal(s.values)
	s.mutex.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// GetString returns key's raw value, or def if unset.
func (s *Store) GetString(key, def string) string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// SetString sets key's raw value.
func (s *Store) SetString(key, value string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.values[key] = value
}

// GetInt returns key's value parsed as an integer, or def if unset or
// unparseable.
func (s *Store) GetInt(key string, def int64) int64 {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// SetInt sets key's value as a decimal integer.
func (s *Store) SetInt(key string, value int64) {
	s.SetString(key, strconv.FormatInt(value, 10))
}

// GetDuration returns key's value parsed as seconds, or def if unset.
func (s *Store) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

// SetDuration sets key's value as whole seconds.
func (s *Store) SetDuration(key string, value time.Duration) {
	s.SetInt(key, int64(value/time.Second))
}

// GetBool returns key's value as a boolean, or def if unset.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	return v == "true" || v == "1"
}

// SetBool sets key's value as a boolean.
func (s *Store) SetBool(key string, value bool) {
	if value {
		s.SetString(key, "true")
	} else {
		s.SetString(key, "false")
	}
}

func (s *Store) lookup(key string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	v, ok := s.values[key]
	return v, ok
}
