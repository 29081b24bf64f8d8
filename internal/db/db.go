package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

type Config struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex"`
	Value string
}

type LogEntry struct {
	gorm.Model
	Timestamp string
	Level     string
	Message   string
}

var defaultConfigValues = map[string]string{
	"preferred_device_name":      "",
	"update_interval_millis":     "120",
	"device_scan_interval_millis": "1000",
	"event_pump_interval_millis": "200",
	"last_listener_volume":       "96",
}

// InitDatabase initializes the database connection
// and performs auto-migration for all models
func InitDatabase(dbpath string) error {
	// Create the directory for the database if it doesn't exist
	dbDir := filepath.Dir(dbpath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Printf("Error creating database directory %s: %v", dbDir, err)
		return err
	}

	// Check if database file exists
	_, err := os.Stat(dbpath)
	dbExists := !os.IsNotExist(err)

	if !dbExists {
		log.Printf("Database file does not exist at %s, creating new database", dbpath)
		// Create empty database file
		file, err := os.Create(dbpath)
		if err != nil {
			log.Printf("Error creating database file: %v", err)
			return err
		}
		file.Close()
	}

	DB, err = gorm.Open(sqlite.Open(dbpath), &gorm.Config{})
	if err != nil {
		return err
	}
	log.Println("Database connected successfully")
	err = DB.AutoMigrate(&Config{}, &LogEntry{})
	if err != nil {
		return err
	}
	log.Println("Database migrated successfully")
	err = seedDefaults()
	if err != nil {
		log.Println("Error seeding default configuration values:", err)
		return err
	}
	log.Println("Database initialized successfully")
	return nil
}

// seedDefaults seeds the database with default configuration values
// default values are set via the defaultConfigValues map
func seedDefaults() error {
	var count int64
	err := DB.Model(&Config{}).Count(&count).Error
	if err != nil {
		log.Println("Error counting configuration entries:", err)
		return err
	}
	if count == 0 {
		for key, value := range defaultConfigValues {
			config := Config{Key: key, Value: value}
			if err := DB.Create(&config).Error; err != nil {
				return err
			}
		}
		log.Println("Seeded default configuration values")
	}
	return nil
}

// GetConfigValue retrieves a configuration value by key
// Returns the value OR any error encountered
func GetConfigValue(key string) (string, error) {
	var config Config
	result := DB.First(&config, "key = ?", key)
	if result.Error != nil {
		return "", result.Error
	}
	return config.Value, nil
}

// GetConfigValues retrieves all configuration key-value pairs
// Returns a map of key-value pairs OR any error encountered
// This is mainly for compatibility with legacy code, but can
// be useful for bulkl config referrals
func GetConfigValues() (map[string]string, error) {
	var configs []Config
	result := DB.Find(&configs)
	if result.Error != nil {
		return nil, result.Error
	}
	configMap := make(map[string]string)
	for _, config := range configs {
		configMap[config.Key] = config.Value
	}
	return configMap, nil
}

// SetConfigValue sets a configuration value by key
// Returns any error encountered || nil
func SetConfigValue(key, value string) error {
	// First try to find existing config
	var config Config
	result := DB.Where("key = ?", key).First(&config)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			// Record doesn't exist, create new one
			config = Config{Key: key, Value: value}
			if err := DB.Create(&config).Error; err != nil {
				return fmt.Errorf("failed to create config value for key %s: %w", key, err)
			}
		} else {
			// Some other error occurred
			return fmt.Errorf("failed to query config for key %s: %w", key, result.Error)
		}
	} else {
		// Record exists, update it
		config.Value = value
		if err := DB.Save(&config).Error; err != nil {
			return fmt.Errorf("failed to update config value for key %s: %w", key, err)
		}
	}

	return nil
}
