package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

type RabbitMQ struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

// Bluetooth identifies the wireless receipt printer. Address is the bound
// device; when empty, discovery scans for the printer service advertisement.
type Bluetooth struct {
	Address        string `yaml:"address"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkDelayMS   int    `yaml:"chunk_delay_ms"`
	ScanTimeoutSec int    `yaml:"scan_timeout_s"`
}

type USB struct {
	VendorID     uint16 `yaml:"vendor_id"`
	ProductID    uint16 `yaml:"product_id"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkDelayMS int    `yaml:"chunk_delay_ms"`
}

type Printer struct {
	Bluetooth         Bluetooth `yaml:"bluetooth"`
	USB               USB       `yaml:"usb"`
	ReconnectDelaySec int       `yaml:"reconnect_delay_s"`
	Width             int       `yaml:"width"`
}

// Business is the receipt header identity.
type Business struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	TaxID   string `yaml:"tax_id"`
}

type Sync struct {
	RefreshIntervalSec int `yaml:"refresh_interval_s"`
}

type Lock struct {
	TTLSec       int `yaml:"ttl_s"`
	HeartbeatSec int `yaml:"heartbeat_s"`
}

type App struct {
	Database Database `yaml:"database"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Printer  Printer  `yaml:"printer"`
	Business Business `yaml:"business"`
	Sync     Sync     `yaml:"sync"`
	Lock     Lock     `yaml:"lock"`
}

func (s Sync) RefreshInterval() time.Duration { return time.Duration(s.RefreshIntervalSec) * time.Second }
func (p Printer) ReconnectDelay() time.Duration {
	return time.Duration(p.ReconnectDelaySec) * time.Second
}
func (l Lock) TTL() time.Duration       { return time.Duration(l.TTLSec) * time.Second }
func (l Lock) Heartbeat() time.Duration { return time.Duration(l.HeartbeatSec) * time.Second }

// Load reads path, applies defaults and validates. Validation is strict on
// the two backends; everything else has workable defaults.
func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, fmt.Errorf("read config: %w", err)
	}
	a := defaults()
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse config: %w", err)
	}
	if err := a.validate(); err != nil {
		return App{}, err
	}
	return a, nil
}

func defaults() App {
	return App{
		Database: Database{Port: 5432, SSLMode: "disable", MaxConns: 10},
		RabbitMQ: RabbitMQ{Port: 5672, VHost: "/"},
		Printer: Printer{
			Bluetooth:         Bluetooth{ChunkSize: 20, ChunkDelayMS: 20, ScanTimeoutSec: 10},
			USB:               USB{ChunkSize: 64},
			ReconnectDelaySec: 5,
			Width:             32,
		},
		Business: Business{Name: "Heros Burger"},
		Sync:     Sync{RefreshIntervalSec: 5},
		Lock:     Lock{TTLSec: 60, HeartbeatSec: 30},
	}
}

func (a App) validate() error {
	if a.Database.Host == "" || a.Database.User == "" || a.Database.Database == "" {
		return fmt.Errorf("config: database host/user/database are required")
	}
	if a.RabbitMQ.Host == "" || a.RabbitMQ.User == "" {
		return fmt.Errorf("config: rabbitmq host/user are required")
	}
	if a.Printer.Bluetooth.ChunkSize <= 0 || a.Printer.USB.ChunkSize <= 0 {
		return fmt.Errorf("config: printer chunk sizes must be positive")
	}
	if a.Lock.HeartbeatSec >= a.Lock.TTLSec {
		return fmt.Errorf("config: lock heartbeat_s must be shorter than ttl_s")
	}
	return nil
}
