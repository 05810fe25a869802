// Package settings implements the persisted key-value store described in
// spec.md §6: device tuning levels plus the MQTT connection block. No
// example repo in the retrieval pack ships an embedded on-device KV store —
// pgx/pgvector/goose (glyphoxa, vango-go-vai-lite) all target a server-side
// Postgres instance, which is not a fit for a single appliance's local
// settings file. This package is therefore stdlib-only (encoding/json plus
// an atomic rename-based write), documented in DESIGN.md.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Known persisted keys (spec.md §6).
const (
	KeyRockLevel     = "rock_level"
	KeySuckLevel     = "suck_level"
	KeyHeaterLevel   = "heater_level"
	KeyVolumeLevel   = "volume_level"
	KeyLanguagesType = "languagesType"
	// KeyDeviceID is not part of spec.md §6's persisted key list; the
	// original firmware derives its device identity from the MAC address
	// (SystemInfo::GetMacAddressDecimal), which has no analog on a generic
	// host. A generated, persisted UUID stands in for it here.
	KeyDeviceID = "device_id"
)

// MQTTConfig is the persisted MQTT settings block of spec.md §6.
type MQTTConfig struct {
	Endpoint       string `json:"endpoint"`
	ClientID       string `json:"client_id"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Keepalive      int    `json:"keepalive"`
	SubscribeTopic string `json:"subscribe_topic"`
}

// Store is the persisted key-value contract. Implementations must be safe
// for concurrent use.
type Store interface {
	GetString(key string) (string, bool)
	GetInt(key string) (int, bool)
	SetString(key, value string) error
	SetInt(key string, value int) error
	MQTT() (MQTTConfig, error)
	SetMQTT(cfg MQTTConfig) error
}

// FileStore persists a flat key-value map plus the MQTT block as JSON on
// disk, guarded by a mutex and written atomically via a temp-file rename.
type FileStore struct {
	path   string
	mu     sync.Mutex
	values map[string]any
	mqtt   MQTTConfig
}

type document struct {
	Values map[string]any `json:"values"`
	MQTT   MQTTConfig     `json:"mqtt"`
}

// NewFileStore opens (or creates) a JSON-backed settings file at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		values: make(map[string]any),
	}
	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if doc.Values != nil {
		fs.values = doc.Values
	}
	fs.mqtt = doc.MQTT
	return nil
}

func (fs *FileStore) persist() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	doc := document{Values: fs.values, MQTT: fs.mqtt}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, fs.path)
}

func (fs *FileStore) GetString(key string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (fs *FileStore) GetInt(key string) (int, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.values[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func (fs *FileStore) SetString(key, value string) error {
	fs.mu.Lock()
	fs.values[key] = value
	fs.mu.Unlock()
	return fs.persist()
}

func (fs *FileStore) SetInt(key string, value int) error {
	fs.mu.Lock()
	fs.values[key] = value
	fs.mu.Unlock()
	return fs.persist()
}

func (fs *FileStore) MQTT() (MQTTConfig, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mqtt, nil
}

func (fs *FileStore) SetMQTT(cfg MQTTConfig) error {
	fs.mu.Lock()
	fs.mqtt = cfg
	fs.mu.Unlock()
	return fs.persist()
}

// GetOrCreateDeviceID returns the persisted device identity, generating
// and persisting one on first run.
func GetOrCreateDeviceID(s Store) (string, error) {
	if id, ok := s.GetString(KeyDeviceID); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := s.SetString(KeyDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}
