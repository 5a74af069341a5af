package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/client/transport"
)

const (
	tokenFileName  = "tokens.json"
	clientFileName = "client.json"
)

// FileTokenStore persists OAuth tokens for one server under its token cache
// directory. Directories are created 0700 and files 0600.
type FileTokenStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileTokenStore returns a store rooted at dir.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{dir: dir}
}


// GetToken implements transport.TokenStore.
func (s *FileTokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, tokenFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, transport.ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}
	var token transport.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token cache: %w", err)
	}
	if token.AccessToken == "" {
		return nil, transport.ErrNoToken
	}
	return &token, nil
}

// SaveToken implements transport.TokenStore.
func (s *FileTokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("nil token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.dir, tokenFileName, token)
}

type clientRecord struct {
	ClientID string `json:"client_id"`
}

// LoadClientID returns the client id stored by SaveClientID.
func LoadClientID(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, clientFileName))
	if err != nil {
		return "", err
	}
	var rec clientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", err
	}
	if rec.ClientID == "" {
		return "", fmt.Errorf("no client id in %s", clientFileName)
	}
	return rec.ClientID, nil
}

// SaveClientID records the client id obtained through Dynamic Client
// Registration so later runs skip registration.
func SaveClientID(dir, clientID string) error {
	return writeJSONFile(dir, clientFileName, clientRecord{ClientID: clientID})
}

func writeJSONFile(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	return nil
}
