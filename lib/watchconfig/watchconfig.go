package watchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

type LoginMode string

const (
	LoginModePassword LoginMode = "password"
	LoginModeFacebook LoginMode = "facebook"
)

type User struct {
	Email      string    `json:"email"`
	Password   string    `json:"password"`
	CellNumber string    `json:"cell_number"`
	LoginMode  LoginMode `json:"login_mode"`
}

type Twilio struct {
	AccountSid string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
}

type Facebook struct {
	// long-lived token bridging a facebook session into the lobby.
	// configuration because it needs rotation, not code.
	BridgeToken string `json:"bridge_token"`
	BaseUrl     string `json:"base_url"`
}

type Config struct {
	Users    []User   `json:"users"`
	Twilio   Twilio   `json:"twilio"`
	Facebook Facebook `json:"facebook"`
	// path of the persisted attack cache document
	StorePath string `json:"store_path"`
	// overridable for testing, defaults to the public lobby
	LobbyBaseUrl string `json:"lobby_base_url"`
	// users processed at once, defaults to 1 (fully sequential)
	MaxConcurrentUsers int  `json:"max_concurrent_users"`
	Debug              bool `json:"debug"`
}

func (c *Config) applyDefaults() {
	if c.StorePath == "" {
		c.StorePath = "attacks.toml"
	}
	if c.MaxConcurrentUsers <= 0 {
		c.MaxConcurrentUsers = 1
	}
}

func (c Config) validate() error {
	for i, u := range c.Users {
		if u.Email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}
		if u.CellNumber == "" {
			return fmt.Errorf("users[%d] (%s): cell_number is required", i, u.Email)
		}
		switch u.LoginMode {
		case LoginModePassword, LoginModeFacebook:
		case "":
			return fmt.Errorf("users[%d] (%s): login_mode is required", i, u.Email)
		default:
			return fmt.Errorf("users[%d] (%s): unknown login_mode %q", i, u.Email, u.LoginMode)
		}
		if u.LoginMode == LoginModeFacebook && c.Facebook.BridgeToken == "" {
			return fmt.Errorf("users[%d] (%s): facebook.bridge_token is required for facebook login", i, u.Email)
		}
	}
	return nil
}

func splitExt(f string) (string, string) {
	if i := strings.LastIndexByte(f, '.'); i >= 0 {
		return f[:i], f[i+1:]
	}
	return f, ""
}

// Read loads the watcher config from `name`, merged with a
// <name>.local.<ext> override when one exists (the override wins).
func Read(name string) (Config, error) {
	var out Config
	allNotFound := true

	dirname := filepath.Dir(name)
	prefix, ext := splitExt(filepath.Base(name))

	contents, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(contents) > 0 {
		if err := json5.Unmarshal(contents, &out); err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localPath := filepath.Join(dirname, fmt.Sprintf("%s.local.%s", prefix, ext))
	localContents, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localContents) > 0 {
		var override Config
		if err := json5.Unmarshal(localContents, &override); err != nil {
			return out, fmt.Errorf("parse %s: %w", localPath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, err
		}
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}

	out.applyDefaults()
	return out, out.validate()
}
