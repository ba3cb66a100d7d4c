package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

type Config struct {
	APIURL      string
	SocketAddr  string
	Secure      bool
	TokenFile   string
	UserId      types.ID
	DebugAddr   string
	QuietPeriod time.Duration
}

// FileConfig is the optional TOML configuration file. Empty fields leave
// the flag values in place.
type FileConfig struct {
	APIURL      string `toml:"api_url"`
	SocketAddr  string `toml:"socket_addr"`
	Secure      *bool  `toml:"secure"`
	TokenFile   string `toml:"token_file"`
	UserId      string `toml:"user_id"`
	DebugAddr   string `toml:"debug_addr"`
	QuietPeriod string `toml:"typing_quiet_period"`
}

func LoadFile(path string) (*FileConfig, error) {
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return &fc, nil
}

func NewConfig(apiURL, socketAddr string, secure bool, tokenFile string) (*Config, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("api url cannot be empty")
	}
	if socketAddr == "" {
		return nil, fmt.Errorf("socket address cannot be empty")
	}
	if tokenFile == "" {
		return nil, fmt.Errorf("token file cannot be empty")
	}

	u, err := url.Parse(apiURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", apiURL)
	}
	if _, _, err := net.SplitHostPort(socketAddr); err != nil {
		return nil, fmt.Errorf("invalid socket address: %w", err)
	}

	return &Config{
		APIURL:     apiURL,
		SocketAddr: socketAddr,
		Secure:     secure,
		TokenFile:  tokenFile,
	}, nil
}

// Merge applies the non-empty fields of fc that were not set explicitly on
// the command line. explicit holds the names of flags the user passed.
func (c *Config) Merge(fc *FileConfig, explicit map[string]bool) error {
	if fc == nil {
		return nil
	}

	if fc.APIURL != "" && !explicit["api-url"] {
		c.APIURL = fc.APIURL
	}
	if fc.SocketAddr != "" && !explicit["socket-addr"] {
		c.SocketAddr = fc.SocketAddr
	}
	if fc.Secure != nil && !explicit["secure"] {
		c.Secure = *fc.Secure
	}
	if fc.TokenFile != "" && !explicit["token-file"] {
		c.TokenFile = fc.TokenFile
	}
	if fc.UserId != "" && !explicit["user-id"] {
		c.UserId = types.ID(fc.UserId)
	}
	if fc.DebugAddr != "" && !explicit["debug-addr"] {
		c.DebugAddr = fc.DebugAddr
	}
	if fc.QuietPeriod != "" && !explicit["typing-quiet-period"] {
		d, err := time.ParseDuration(fc.QuietPeriod)
		if err != nil {
			return fmt.Errorf("typing_quiet_period: %w", err)
		}
		c.QuietPeriod = d
	}

	_, err := NewConfig(c.APIURL, c.SocketAddr, c.Secure, c.TokenFile)
	return err
}

// SocketURL returns {ws|wss}://{host}:{port}/ws/chat/{roomId}/?token={token}.
func (c *Config) SocketURL(roomId types.ID, token string) string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     c.SocketAddr,
		Path:     "/ws/chat/" + roomId.String() + "/",
		RawQuery: url.Values{"token": []string{token}}.Encode(),
	}
	return u.String()
}
