// Package session persists the auth token between runs and derives the
// current user's identity from it.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

// TokenKey is the key the auth token is stored under.
const TokenKey = "auth_token"

var ErrNoToken = errors.New("no auth token stored")

type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultPath returns ~/.config/go-chat-client/session.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "go-chat-client", "session.json"), nil
}

func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read session: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}

	token := values[TokenKey]
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(map[string]string{TokenKey: token})
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

var userIdClaims = []string{"user_id", "user-id", "sub"}

// UserIdFromToken reads the user id claim of a JWT auth token. The signature
// is not verified; the backend does that on every request.
func UserIdFromToken(token string) (types.ID, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	for _, name := range userIdClaims {
		switch v := claims[name].(type) {
		case float64:
			return types.IDFromInt(int(v)), nil
		case string:
			if v != "" {
				return types.ID(v), nil
			}
		}
	}

	return "", fmt.Errorf("token has no user id claim")
}
