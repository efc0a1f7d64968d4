package models

import "errors"

// Protocol is the reachability mechanism used for a device
type Protocol string

const (
	ProtocolICMP Protocol = "icmp"
	ProtocolTCP  Protocol = "tcp"
	ProtocolSNMP Protocol = "snmp"
	// ProtocolAuto lets the prober pick the first protocol that answers
	ProtocolAuto Protocol = "auto"
)

// Version is an SNMP protocol version
type Version string

const (
	V1  Version = "v1"
	V2c Version = "v2c"
	V3  Version = "v3"
)

// SecurityLevel is the SNMPv3 USM security level
type SecurityLevel int

const (
	NoAuthNoPriv SecurityLevel = 1
	AuthNoPriv   SecurityLevel = 2
	AuthPriv     SecurityLevel = 3
)

func (l SecurityLevel) String() string {
	switch l {
	case AuthNoPriv:
		return "authNoPriv"
	case AuthPriv:
		return "authPriv"
	default:
		return "noAuthNoPriv"
	}
}

// Profile is a named SNMP credential set tried against unknown devices.
// Security holds the community for v1/v2c and the USM user name for v3.
type Profile struct {
	Name     string        `yaml:"name" json:"name"`
	Version  Version       `yaml:"version" json:"version"`
	Port     uint16        `yaml:"port" json:"port"`
	Security string        `yaml:"security" json:"security"`
	Level    SecurityLevel `yaml:"level" json:"level"`
}

// Credential is an SNMPv3 USM user
type Credential struct {
	Name         string        `yaml:"name" json:"name"`
	Level        SecurityLevel `yaml:"level" json:"level"`
	AuthProtocol string        `yaml:"auth_protocol" json:"auth_protocol"`
	AuthKey      string        `yaml:"auth_key" json:"-"`
	PrivProtocol string        `yaml:"priv_protocol" json:"priv_protocol"`
	PrivKey      string        `yaml:"priv_key" json:"-"`
}

// Profile validation errors
var (
	ErrEmptyProfileName  = errors.New("profile name cannot be empty")
	ErrInvalidVersion    = errors.New("invalid SNMP version")
	ErrInvalidPort       = errors.New("invalid port")
	ErrEmptySecurity     = errors.New("security name cannot be empty")
	ErrInvalidLevel      = errors.New("invalid security level")
	ErrEmptyCredential   = errors.New("credential name cannot be empty")
	ErrMissingAuthKey    = errors.New("auth key required for security level")
	ErrMissingPrivKey    = errors.New("priv key required for security level")
	ErrUnknownProtocol   = errors.New("unknown protocol")
	ErrUnknownAuthMethod = errors.New("unknown auth protocol")
	ErrUnknownPrivMethod = errors.New("unknown priv protocol")
)

// Validate checks if the Profile is usable for a request
func (p *Profile) Validate() error {
	if p.Name == "" {
		return ErrEmptyProfileName
	}

	if !p.Version.IsValid() {
		return ErrInvalidVersion
	}

	if p.Port == 0 {
		return ErrInvalidPort
	}

	if p.Security == "" {
		return ErrEmptySecurity
	}

	if p.Version == V3 && !p.Level.IsValid() {
		return ErrInvalidLevel
	}

	return nil
}

// Validate checks if the Credential carries the keys its level requires
func (c *Credential) Validate() error {
	if c.Name == "" {
		return ErrEmptyCredential
	}

	if !c.Level.IsValid() {
		return ErrInvalidLevel
	}

	if c.Level >= AuthNoPriv && c.AuthKey == "" {
		return ErrMissingAuthKey
	}

	if c.Level == AuthPriv && c.PrivKey == "" {
		return ErrMissingPrivKey
	}

	return nil
}

// IsValid checks if the version is supported
func (v Version) IsValid() bool {
	switch v {
	case V1, V2c, V3:
		return true
	default:
		return false
	}
}

// IsValid checks if the level is one of the three USM levels
func (l SecurityLevel) IsValid() bool {
	return l >= NoAuthNoPriv && l <= AuthPriv
}
