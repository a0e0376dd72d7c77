package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Profile is the connection a CLI invocation uses. Values resolve flag first,
// then GROUPCHAT_* env, then the profile file.
type Profile struct {
	Server    string `yaml:"server"`
	APIKey    string `yaml:"api_key"`
	User      string `yaml:"user"`
	Signature string `yaml:"signature"`
	Channel   string `yaml:"channel"`
}

// DefaultProfilePath is $HOME/.groupchat.yaml, or empty without a home dir.
func DefaultProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".groupchat.yaml")
}

// LoadProfile reads path. A missing file yields an empty profile.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, err
	}
	return p, nil
}

// Resolve overlays env values and then non-empty flag values onto p.
func (p Profile) Resolve(getenv func(string) string, flags Profile) Profile {
	pick := func(cur *string, env, flag string) {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			*cur = v
		}
		if flag != "" {
			*cur = flag
		}
	}
	pick(&p.Server, "GROUPCHAT_SERVER", flags.Server)
	pick(&p.APIKey, "GROUPCHAT_API_KEY", flags.APIKey)
	pick(&p.User, "GROUPCHAT_USER", flags.User)
	pick(&p.Signature, "GROUPCHAT_SIGNATURE", flags.Signature)
	pick(&p.Channel, "GROUPCHAT_CHANNEL", flags.Channel)
	if p.Server == "" {
		p.Server = "http://localhost:8080"
	}
	return p
}
