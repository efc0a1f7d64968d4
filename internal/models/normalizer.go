package models

import (
	"strconv"
	"strings"
)

// DefaultSNMPPort is used when a profile or device omits the port
const DefaultSNMPPort uint16 = 161

// Normalize applies field normalization to a Profile
// - trims the name and security name
// - lower-cases the version, accepting "1", "2c" and "3"; empty means v2c
// - fills in the default port
func (p *Profile) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Security = strings.TrimSpace(p.Security)
	p.Version = NormalizeVersion(string(p.Version))
	if p.Version == "" {
		p.Version = V2c
	}

	if p.Port == 0 {
		p.Port = DefaultSNMPPort
	}

	if p.Version != V3 && p.Level == 0 {
		p.Level = NoAuthNoPriv
	}
}

// Normalize lower-cases the protocol names of a Credential
func (c *Credential) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.AuthProtocol = strings.ToLower(strings.TrimSpace(c.AuthProtocol))
	c.PrivProtocol = strings.ToLower(strings.TrimSpace(c.PrivProtocol))
}

// NormalizeVersion maps the usual spellings of an SNMP version to a Version
func NormalizeVersion(s string) Version {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return V1
	case "v2c", "2c", "v2", "2":
		return V2c
	case "v3", "3":
		return V3
	default:
		return Version(s)
	}
}

// ParseProtocol converts a protocol name into a Protocol
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolICMP, ProtocolTCP, ProtocolSNMP, ProtocolAuto:
		return p, nil
	default:
		return "", ErrUnknownProtocol
	}
}

// ParseSecurityLevel accepts a level name or its numeric value
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "noauthnopriv", "no_auth_no_priv":
		return NoAuthNoPriv, nil
	case "authnopriv", "auth_no_priv":
		return AuthNoPriv, nil
	case "authpriv", "auth_priv":
		return AuthPriv, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !SecurityLevel(n).IsValid() {
		return 0, ErrInvalidLevel
	}
	return SecurityLevel(n), nil
}

// UnmarshalText lets configuration files name the level instead of using its number
func (l *SecurityLevel) UnmarshalText(text []byte) error {
	v, err := ParseSecurityLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
