/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the vehicle/RSU configuration: a YAML file
// unmarshaled onto a defaults-filled struct, with any field overridable
// by the CLI's flag layer after Load.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// TopologyConfig is the RSU grid shape.
type TopologyConfig struct {
	Cols     int     `yaml:"cols"`
	Rows     int     `yaml:"rows"`
	RSURange float64 `yaml:"rsu_range"`
}

// NavigatorConfig selects and parameterizes a nav.LocationSource.
type NavigatorConfig struct {
	// Kind is "random_walk" (also used when empty) or "csv". The vehicle
	// command rejects any other value, "waypoints" included: the config
	// carries no waypoint list.
	Kind  string  `yaml:"kind"`
	Path  string  `yaml:"path"`  // csv dataset path, when Kind == "csv"
	Speed float64 `yaml:"speed"` // step size per tick, when Kind == "random_walk"
}

// PublisherConfig declares one smart-data publisher to start: the port
// it listens for subscribes on and the SI unit code it serves.
type PublisherConfig struct {
	Port uint16 `yaml:"port"`
	Unit uint32 `yaml:"unit"`
}

// SubscriberConfig declares one smart-data subscription to issue at
// startup: the local port, the SI unit code and the period in ticks.
type SubscriberConfig struct {
	Port   uint16 `yaml:"port"`
	Unit   uint32 `yaml:"unit"`
	Period uint32 `yaml:"period"`
}

// Config is the per-vehicle (or per-RSU) configuration.
type Config struct {
	InterfaceName string `yaml:"interface_name"`
	SysID         uint32 `yaml:"sys_id"`
	IsRSU         bool   `yaml:"is_rsu"`

	Topology  TopologyConfig  `yaml:"topology"`
	Navigator NavigatorConfig `yaml:"navigator"`

	AnnouncePeriod   time.Duration `yaml:"announce_period"`
	LeaderPeriod     time.Duration `yaml:"leader_period"`
	MacRenewInterval uint32        `yaml:"mac_renew_interval"`
	KeyPeriod        time.Duration `yaml:"key_period"`
	BufferPoolSize   int           `yaml:"buffer_pool_size"`

	Publishers  []PublisherConfig  `yaml:"publishers"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`

	LogLevel       string `yaml:"log_level"`
	MonitoringPort int    `yaml:"monitoring_port"`
}

// Default returns a Config carrying the stock periods and a
// reasonably sized buffer pool, for callers that only need to override
// a few fields (tests, the CLI's flag layer).
func Default() Config {
	return Config{
		AnnouncePeriod:   time.Second,
		LeaderPeriod:     time.Second,
		MacRenewInterval: 3,
		KeyPeriod:        time.Second,
		BufferPoolSize:   64,
		LogLevel:         "warning",
		MonitoringPort:   8080,
		Topology:         TopologyConfig{Cols: 4, Rows: 4, RSURange: 100},
		Navigator:        NavigatorConfig{Kind: "random_walk", Speed: 1},
	}
}

// Load reads and unmarshals the YAML config file at path onto a
// Default() base, so a partial file only overrides the fields it sets.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return &c, nil
}
