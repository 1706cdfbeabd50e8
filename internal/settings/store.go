package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store persists Settings as a flat key-value YAML file via viper and keeps
// a cheap in-memory copy for Get. Save validates, writes to a temp file and
// renames, so a crash mid-write cannot leave a torn settings file.
type Store struct {
	mu      sync.RWMutex
	current Settings
	path    string
	v       *viper.Viper
	log     *zap.Logger
}

// NewStore loads settings from path, falling back to defaults (and writing
// them out) when no file exists yet.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	s := &Store{
		current: Defaults(),
		path:    path,
		v:       v,
		log:     log,
	}

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Info("no saved settings, writing defaults", zap.String("path", path))
			if err := s.persist(s.current); err != nil {
				return nil, fmt.Errorf("write default settings: %w", err)
			}
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	loaded := Defaults()
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("saved settings invalid: %w", err)
	}
	s.current = loaded
	log.Info("settings loaded", zap.String("path", path))
	return s, nil
}

// Watch reloads the store when the settings file changes on disk, e.g. when
// edited by hand. Invalid edits are logged and ignored; the in-memory copy
// keeps its last valid value. A running cycle is never affected either way.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		loaded := Defaults()
		if err := s.v.Unmarshal(&loaded); err != nil {
			s.log.Warn("settings reload failed", zap.Error(err))
			return
		}
		if err := loaded.Validate(); err != nil {
			s.log.Warn("settings reload rejected", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.current = loaded
		s.mu.Unlock()
		s.log.Info("settings reloaded", zap.String("event", e.Name))
	})
	s.v.WatchConfig()
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save validates and persists new settings, then updates the in-memory copy.
func (s *Store) Save(ns Settings) error {
	if err := ns.Validate(); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	if err := s.persist(ns); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = ns
	s.mu.Unlock()
	s.log.Info("settings saved", zap.String("path", s.path))
	return nil
}

// SetDefaults restores and persists the factory settings.
func (s *Store) SetDefaults() error {
	return s.Save(Defaults())
}

func (s *Store) persist(ns Settings) error {
	s.v.Set("tank1_time", ns.Tank1Time)
	s.v.Set("tank2_time", ns.Tank2Time)
	s.v.Set("tank3_time", ns.Tank3Time)
	s.v.Set("water_pump_time", ns.WaterPumpTime)
	s.v.Set("milk_pump_time", ns.MilkPumpTime)
	s.v.Set("int_heater_time", ns.IntHeaterTime)
	s.v.Set("int_heater_temp", ns.IntHeaterTemp)
	s.v.Set("ext_heater_time", ns.ExtHeaterTime)
	s.v.Set("ext_heater_temp", ns.ExtHeaterTemp) // saved but not used
	s.v.Set("mixer_time", ns.MixerTime)

	// viper picks the output format from the file extension, so the temp
	// file keeps a .yaml suffix.
	tmp := s.path + ".tmp.yaml"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := s.v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
