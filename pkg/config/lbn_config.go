package config

import "time"

// LBNConfig contains configuration for the Location-Based Network session
// the neighborhood synchronization core maintains with the external LBN node.
type LBNConfig struct {
	Endpoint string `yaml:"endpoint"` // host:port of the LBN node; empty disables the core

	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`       // default: 10s
	MaxNeighborhoodSize int           `yaml:"max_neighborhood_size"` // default: 64
	IdentifierLength    int           `yaml:"identifier_length"`     // fixed at 32
	ResponseTimeout     time.Duration `yaml:"response_timeout"`      // bounded wait on deregister ack
	PrimaryRolePort     int           `yaml:"primary_role_port"`     // this node's advertised profile-sharing port
	StatusAddr          string        `yaml:"status_addr"`           // listen address for the read-only status route
}
