// Package config handles the loading and management of application configuration.
// It uses a singleton pattern to ensure that there is only one configuration
// object active throughout the application's lifecycle.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Config holds the application's configuration.
// Fields that are not persisted to disk are marked with `json:"-"`.
type Config struct {
	// Runtime-only fields (not saved in settings.json)
	HomeDir string `json:"-"`
	LogDir  string `json:"-"`
	DBDir   string `json:"-"`

	// Persisted fields (saved in settings.json)
	PreferredDeviceName     string `json:"preferred_device_name"`
	UpdateIntervalMillis    int    `json:"update_interval_millis"`     // worker's native-update tick
	DeviceScanIntervalMillis int   `json:"device_scan_interval_millis"` // worker's hot-plug scan tick
	EventPumpIntervalMillis int    `json:"event_pump_interval_millis"` // caller-side event drain tick
	LastListenerVolume      int    `json:"last_listener_volume"`       // 0..128, last listener gain set by the user
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton instance of the application configuration.
// On its first call, it initializes the configuration by loading it from
// ~/.alcore/settings.json. If the file does not exist, it's created
// with default values.
func Get() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := instance.Load(); err != nil {
			// If configuration fails to load, the application cannot run correctly.
			log.Fatalf("FATAL: could not load configuration: %v", err)
		}
	})
	return instance
}

// Load reads the configuration from ~/.alcore/settings.json.
// If the file doesn't exist, it applies default settings and saves the new file.
// It is called automatically on first access via Get().
func (c *Config) Load() error {
	log.Println("Loading application configuration...")

	// 1) Paths
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("config: could not determine user home directory: %w", err)
	}
	configDir := filepath.Join(homeDir, ".alcore")
	configFilePath := filepath.Join(configDir, "settings.json")

	c.LogDir = configDir
	c.DBDir = configDir

	// 2) Ensure config dir
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: could not create config directory %s: %w", configDir, err)
	}

	// 3) Read file (may not exist)
	data, readErr := os.ReadFile(configFilePath)
	fileMissing := false
	if readErr != nil {
		if !os.IsNotExist(readErr) {
			return fmt.Errorf("config: failed to read settings file %s: %w", configFilePath, readErr)
		}
		fileMissing = true
		log.Println("settings.json not found, will create with defaults.")
	}

	// 4) If we have JSON, unmarshal and also probe for field existence
	hasLastVolume := false
	if len(data) > 0 {
		// Probe keys without forcing defaults
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("config: could not parse json (raw probe): %w", err)
		}
		// IMPORTANT: this key must match the LastListenerVolume struct tag.
		_, hasLastVolume = raw["last_listener_volume"]

		// Now unmarshal into the struct
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: could not parse json from %s: %w", configFilePath, err)
		}
	}

	// 5) Populate runtime fields
	c.HomeDir = homeDir

	// 6) Apply first-run defaults for the worker/pump timing knobs
	defaultsApplied := false
	if c.UpdateIntervalMillis <= 0 {
		c.UpdateIntervalMillis = 120
		defaultsApplied = true
	}
	if c.DeviceScanIntervalMillis <= 0 {
		c.DeviceScanIntervalMillis = 1000
		defaultsApplied = true
	}
	if c.EventPumpIntervalMillis <= 0 {
		c.EventPumpIntervalMillis = 200
		defaultsApplied = true
	}

	// 7) LastListenerVolume default ONLY if key was missing (or bad value).
	// Treat first-run (no file) the same as "missing key".
	if !hasLastVolume || c.LastListenerVolume < 0 || c.LastListenerVolume > 128 {
		c.LastListenerVolume = 96 // 75% of 128
		defaultsApplied = defaultsApplied || fileMissing
	}

	// 8) Save if first run or we applied defaults
	if fileMissing || defaultsApplied {
		log.Println("Applying default settings and saving configuration.")
		if saveErr := c.Save(); saveErr != nil {
			return fmt.Errorf("config: failed to save initial/default settings: %w", saveErr)
		}
	}

	log.Printf("Configuration loaded successfully from %s", configDir)
	return nil
}

// Save writes the current configuration state to ~/.alcore/settings.json.
func (c *Config) Save() error {
	// HomeDir should be populated by Load(), but we check for safety.
	if c.HomeDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: could not determine user home directory for saving: %w", err)
		}
		c.HomeDir = homeDir
	}

	configFilePath := filepath.Join(c.HomeDir, ".alcore", "settings.json")

	// Ensure the directory exists, as Save() could theoretically be called before Load().
	if err := os.MkdirAll(filepath.Dir(configFilePath), 0755); err != nil {
		return fmt.Errorf("config: could not create directory for saving: %w", err)
	}

	// Marshal the config struct into pretty-printed JSON.
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: could not marshal config to json: %w", err)
	}

	// Write the JSON data to the file.
	log.Printf("Saving configuration to %s", configFilePath)
	return os.WriteFile(configFilePath, data, 0644)
}

// Update saves the current in-memory configuration to disk and then immediately
// reloads it from the file. This is useful for ensuring the application state is
// synchronized with the settings.json file after making programmatic changes.
func (c *Config) Update() error {
	log.Println("Updating configuration...")
	if err := c.Save(); err != nil {
		return fmt.Errorf("config: failed to save during update: %w", err)
	}
	// Reload the configuration from the file to ensure consistency.
	return c.Load()
}
