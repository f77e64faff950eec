// Package config loads and round-trips the client's JSON configuration,
// the Go shape of original_source/src/config.rs's Config/TcpConfig/
// SslConfig (an untagged Client|Server union) and MysqlConfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the full on-disk shape (spec.md §6, supplemented by
// target_addr/target_port/mysql for lossless round-trip of the
// forward/nat/server config variants — this client only acts on
// run_type "client").
type Config struct {
	RunType    string   `json:"run_type"`
	LocalAddr  string   `json:"local_addr"`
	LocalPort  uint16   `json:"local_port"`
	RemoteAddr string   `json:"remote_addr"`
	RemotePort uint16   `json:"remote_port"`
	TargetAddr *string  `json:"target_addr,omitempty"`
	TargetPort *uint16  `json:"target_port,omitempty"`
	Password   []string `json:"password"`
	UDPTimeout *uint32  `json:"udp_timeout,omitempty"`
	LogLevel   uint8    `json:"log_level"`
	SSL        SSL      `json:"ssl"`
	TCP        TCP      `json:"tcp"`
	MySQL      *MySQL   `json:"mysql,omitempty"`
}

// TCP is spec.md §6's "tcp" block.
type TCP struct {
	PreferIPv4   *bool  `json:"prefer_ipv4,omitempty"`
	NoDelay      bool   `json:"no_delay"`
	KeepAlive    bool   `json:"keep_alive"`
	ReusePort    bool   `json:"reuse_port"`
	FastOpen     bool   `json:"fast_open"`
	FastOpenQlen uint32 `json:"fast_open_qlen"`
}

// MySQL is the server-side quota store, carried only so a server.json
// config round-trips losslessly; this client never reads it.
type MySQL struct {
	Enabled    bool   `json:"enabled"`
	ServerAddr string `json:"server_addr"`
	ServerPort uint16 `json:"server_port"`
	Database   string `json:"database"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Key        string `json:"key"`
	Cert       string `json:"cert"`
	CA         string `json:"ca"`
}

// ClientSSL is spec.md §4.5's TLS connector factory options.
type ClientSSL struct {
	Verify         bool     `json:"verify"`
	VerifyHostname bool     `json:"verify_hostname"`
	Cert           string   `json:"cert"`
	Cipher         string   `json:"cipher"`
	CipherTLS13    string   `json:"cipher_tls13"`
	SNI            string   `json:"sni"`
	ALPN           []string `json:"alpn"`
	ReuseSession   bool     `json:"reuse_session"`
	SessionTicket  bool     `json:"session_ticket"`
	Curves         string   `json:"curves"`
}

// ServerSSL is the Trojan-server-side ssl shape; never consumed by this
// client, carried for round-trip of server.json.
type ServerSSL struct {
	Cert               string            `json:"cert"`
	Key                string            `json:"key"`
	KeyPassword        string            `json:"key_password"`
	Cipher             string            `json:"cipher"`
	CipherTLS13        string            `json:"cipher_tls13"`
	PreferServerCipher bool              `json:"prefer_server_cipher"`
	ALPN               []string          `json:"alpn"`
	ALPNPortOverride   map[string]uint16 `json:"alpn_port_override"`
	ReuseSession       bool              `json:"reuse_session"`
	SessionTicket      bool              `json:"session_ticket"`
	SessionTimeout     uint32            `json:"session_timeout"`
	PlainHTTPResponse  string            `json:"plain_http_response"`
	Curves             string            `json:"curves"`
	DHParam            string            `json:"dhparam"`
}

// SSL mirrors the Rust config's untagged Client|Server ssl enum: the
// two shapes are distinguished structurally (Client has "verify",
// Server has "key") rather than by a discriminator field, since the
// wire format carries none.
type SSL struct {
	Client *ClientSSL
	Server *ServerSSL
}

// AsClient returns the ssl block as a ClientSSL, panicking if this
// config was loaded as a server config — mirrors SslConfig::client()'s
// panic-on-wrong-variant contract, which is safe here because run_type
// is checked once at startup before anything reads ssl.
func (s SSL) AsClient() *ClientSSL {
	if s.Client == nil {
		panic("config: ssl block is not a client config")
	}
	return s.Client
}

func (s SSL) MarshalJSON() ([]byte, error) {
	switch {
	case s.Client != nil:
		return json.Marshal(s.Client)
	case s.Server != nil:
		return json.Marshal(s.Server)
	default:
		return nil, fmt.Errorf("config: ssl block is neither client nor server shaped")
	}
}

func (s *SSL) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if _, isClient := probe["verify"]; isClient {
		var c ClientSSL
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		s.Client = &c
		return nil
	}

	var srv ServerSSL
	if err := json.Unmarshal(data, &srv); err != nil {
		return err
	}
	s.Server = &srv
	return nil
}

// Load reads and decodes the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if len(cfg.Password) == 0 {
		return nil, fmt.Errorf("config: %s: password list is empty", path)
	}
	return &cfg, nil
}
