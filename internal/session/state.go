package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Token is the cached credential and its bookkeeping.
type Token struct {
	Value               string    `json:"value"`
	AcquiredAt          time.Time `json:"acquired_at"`
	TTLSeconds          int64     `json:"ttl_seconds"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// LoadToken reads a persisted token. Returns a zero token if the file doesn't exist.
func LoadToken(filePath string) (Token, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Token{}, nil
		}
		return Token{}, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// SaveToken writes the token to a JSON file.
func SaveToken(filePath string, tok Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0o600)
}

// RemoveToken deletes the persisted token, if any.
func RemoveToken(filePath string) error {
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
