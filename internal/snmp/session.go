// Package snmp carries SNMP requests for the engine: a shared session over
// gosnmp, the GETNEXT walk and value decoding.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"

	"beacon/internal/catalog"
	"beacon/internal/logger"
	"beacon/internal/metrics"
	"beacon/internal/models"
)

// Status codes reported at the end of a walk. Positive values are SNMP error-status codes.
const (
	StatusSuccess = 0
	StatusTimeout = -1
)

// Session errors
var (
	ErrSessionClosed = errors.New("snmp session is closed")
	ErrUnknownUser   = errors.New("no USM credential for user")
)

// Target addresses one agent with one set of credentials.
type Target struct {
	DeviceID models.DeviceID
	Address  string
	Port     uint16
	Version  models.Version
	// Community for v1/v2c, USM user name for v3
	Security string
	Level    models.SecurityLevel
	Timeout  time.Duration
	Retries  int
	// Transient targets are used once and never cached
	Transient bool
}

func (t Target) key() string {
	return fmt.Sprintf("%d/%s:%d/%s/%s/%d", t.DeviceID, t.Address, t.Port, t.Version, t.Security, t.Level)
}

// Binding is one variable binding of a response
type Binding struct {
	OID   string
	Type  gosnmp.Asn1BER
	Value any
}

// Response is a decoded GETNEXT response PDU
type Response struct {
	ErrorStatus int
	ErrorIndex  int
	// Report is set when a v3 agent answered with a report PDU only
	Report   bool
	Bindings []Binding
}

// Requester sends one GETNEXT. Session is the production implementation.
type Requester interface {
	GetNext(ctx context.Context, t Target, oids []string) (*Response, error)
}

type client struct {
	mu       sync.Mutex
	deviceID models.DeviceID
	user     string
	g        *gosnmp.GoSNMP
}

// Session is shared by every node. It caches one connected client per
// target, serialises use of each client, tracks outstanding requests and
// holds the USM credential table.
type Session struct {
	mu          sync.Mutex
	credentials map[string]models.Credential
	clients     map[string]*client
	outstanding map[uint32]models.DeviceID
	closed      bool

	nextID atomic.Uint32
	log    zerolog.Logger
}

func NewSession() *Session {
	return &Session{
		credentials: make(map[string]models.Credential),
		clients:     make(map[string]*client),
		outstanding: make(map[uint32]models.DeviceID),
		log:         logger.WithComponent("snmp_session"),
	}
}

// AddCredential registers or replaces a USM user. Cached clients of that user are rebuilt on next use.
func (s *Session) AddCredential(c models.Credential) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := authProtocol(c.AuthProtocol); err != nil {
		return err
	}
	if _, err := privProtocol(c.PrivProtocol); err != nil {
		return err
	}

	s.mu.Lock()
	s.credentials[c.Name] = c
	stale := s.detachUserLocked(c.Name)
	s.mu.Unlock()
	closeAll(stale)

	s.log.Info().Str("user", c.Name).Stringer("level", c.Level).Msg("usm credential added")
	return nil
}

// RemoveCredential forgets a USM user.
func (s *Session) RemoveCredential(name string) {
	s.mu.Lock()
	delete(s.credentials, name)
	stale := s.detachUserLocked(name)
	s.mu.Unlock()
	closeAll(stale)

	s.log.Info().Str("user", name).Msg("usm credential removed")
}

// Release closes the cached clients of one device.
func (s *Session) Release(id models.DeviceID) {
	var stale []*client
	s.mu.Lock()
	for k, c := range s.clients {
		if c.deviceID == id {
			delete(s.clients, k)
			stale = append(stale, c)
		}
	}
	s.mu.Unlock()

	closeAll(stale)
}

// Outstanding returns the number of requests awaiting a response.
func (s *Session) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outstanding)
}

// Close closes every cached client. Later requests fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	stale := make([]*client, 0, len(s.clients))
	for k, c := range s.clients {
		delete(s.clients, k)
		stale = append(stale, c)
	}
	s.mu.Unlock()

	return closeAll(stale)
}

// GetNext sends one GETNEXT request carrying every OID in oids.
func (s *Session) GetNext(ctx context.Context, t Target, oids []string) (*Response, error) {
	c, err := s.client(t)
	if err != nil {
		return nil, err
	}
	if t.Transient {
		defer c.close()
	}

	id := s.track(t.DeviceID)
	defer s.untrack(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.g.Conn == nil {
		return nil, ErrSessionClosed
	}

	c.g.Context = ctx
	c.g.Timeout = t.Timeout
	c.g.Retries = t.Retries
	if len(oids) > c.g.MaxOids {
		c.g.MaxOids = len(oids)
	}

	pkt, err := c.g.GetNext(oids)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ErrorStatus: int(pkt.Error),
		ErrorIndex:  int(pkt.ErrorIndex),
		Report:      pkt.PDUType == gosnmp.Report,
		Bindings:    make([]Binding, 0, len(pkt.Variables)),
	}
	for _, v := range pkt.Variables {
		resp.Bindings = append(resp.Bindings, Binding{OID: catalog.Trim(v.Name), Type: v.Type, Value: v.Value})
	}
	return resp, nil
}

func (s *Session) track(id models.DeviceID) uint32 {
	reqID := s.nextID.Add(1)
	s.mu.Lock()
	s.outstanding[reqID] = id
	metrics.SNMPOutstanding.Set(float64(len(s.outstanding)))
	s.mu.Unlock()
	return reqID
}

func (s *Session) untrack(reqID uint32) {
	s.mu.Lock()
	delete(s.outstanding, reqID)
	metrics.SNMPOutstanding.Set(float64(len(s.outstanding)))
	s.mu.Unlock()
}

func (s *Session) client(t Target) (*client, error) {
	key := t.key()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if !t.Transient {
		if c, ok := s.clients[key]; ok {
			s.mu.Unlock()
			return c, nil
		}
	}
	g, err := s.build(t)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Connect may resolve a host name, so it runs without s.mu
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", t.Address, t.Port, err)
	}

	c := &client{deviceID: t.DeviceID, g: g}
	if t.Version == models.V3 {
		c.user = t.Security
	}
	if t.Transient {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.close()
		return nil, ErrSessionClosed
	}
	if existing, ok := s.clients[key]; ok {
		c.close()
		return existing, nil
	}
	s.clients[key] = c
	return c, nil
}

// build must be called with s.mu held.
func (s *Session) build(t Target) (*gosnmp.GoSNMP, error) {
	port := t.Port
	if port == 0 {
		port = models.DefaultSNMPPort
	}

	g := &gosnmp.GoSNMP{
		Target:    t.Address,
		Port:      port,
		Transport: "udp",
		Timeout:   t.Timeout,
		Retries:   t.Retries,
		MaxOids:   gosnmp.MaxOids,
	}

	switch t.Version {
	case models.V1:
		g.Version = gosnmp.Version1
		g.Community = t.Security
	case models.V2c:
		g.Version = gosnmp.Version2c
		g.Community = t.Security
	case models.V3:
		cred, ok := s.credentials[t.Security]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownUser, t.Security)
		}
		params, flags, err := usmParameters(cred, t.Level)
		if err != nil {
			return nil, err
		}
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = flags
		g.SecurityParameters = params
	default:
		return nil, models.ErrInvalidVersion
	}

	return g, nil
}

func usmParameters(c models.Credential, level models.SecurityLevel) (*gosnmp.UsmSecurityParameters, gosnmp.SnmpV3MsgFlags, error) {
	params := &gosnmp.UsmSecurityParameters{UserName: c.Name}

	if level > c.Level {
		level = c.Level
	}

	switch level {
	case models.AuthPriv:
		priv, err := privProtocol(c.PrivProtocol)
		if err != nil {
			return nil, 0, err
		}
		params.PrivacyProtocol = priv
		params.PrivacyPassphrase = c.PrivKey
		fallthrough
	case models.AuthNoPriv:
		auth, err := authProtocol(c.AuthProtocol)
		if err != nil {
			return nil, 0, err
		}
		params.AuthenticationProtocol = auth
		params.AuthenticationPassphrase = c.AuthKey
	}

	switch level {
	case models.AuthPriv:
		return params, gosnmp.AuthPriv, nil
	case models.AuthNoPriv:
		return params, gosnmp.AuthNoPriv, nil
	default:
		return params, gosnmp.NoAuthNoPriv, nil
	}
}

func authProtocol(name string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToLower(name) {
	case "", "sha":
		return gosnmp.SHA, nil
	case "md5":
		return gosnmp.MD5, nil
	case "sha224":
		return gosnmp.SHA224, nil
	case "sha256":
		return gosnmp.SHA256, nil
	case "sha384":
		return gosnmp.SHA384, nil
	case "sha512":
		return gosnmp.SHA512, nil
	default:
		return gosnmp.NoAuth, fmt.Errorf("%w %q", models.ErrUnknownAuthMethod, name)
	}
}

func privProtocol(name string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToLower(name) {
	case "", "des":
		return gosnmp.DES, nil
	case "aes", "aes128":
		return gosnmp.AES, nil
	case "aes192":
		return gosnmp.AES192, nil
	case "aes256":
		return gosnmp.AES256, nil
	default:
		return gosnmp.NoPriv, fmt.Errorf("%w %q", models.ErrUnknownPrivMethod, name)
	}
}

// detachUserLocked removes the clients of user from the cache. The caller
// closes them after releasing s.mu, since closing waits for a request in flight.
func (s *Session) detachUserLocked(user string) []*client {
	var stale []*client
	for k, c := range s.clients {
		if c.user == user {
			delete(s.clients, k)
			stale = append(stale, c)
		}
	}
	return stale
}

func closeAll(clients []*client) error {
	var errs []error
	for _, c := range clients {
		if err := c.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.g == nil || c.g.Conn == nil {
		return nil
	}
	err := c.g.Conn.Close()
	c.g.Conn = nil
	return err
}
