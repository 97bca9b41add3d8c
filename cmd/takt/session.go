package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Session is the stored result of a login.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ServerURL string    `json:"server_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager persists the session under the user's home directory.
type SessionManager struct {
	sessionPath string
}

func NewSessionManager() *SessionManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	sessionDir := filepath.Join(homeDir, ".takt")
	_ = os.MkdirAll(sessionDir, 0o700)
	return &SessionManager{sessionPath: filepath.Join(sessionDir, "session.json")}
}

func (sm *SessionManager) SaveSession(session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.sessionPath, data, 0o600)
}

// LoadSession returns nil without error when no valid session exists.
func (sm *SessionManager) LoadSession() (*Session, error) {
	data, err := os.ReadFile(sm.sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		_ = sm.ClearSession()
		return nil, nil
	}
	return &session, nil
}

func (sm *SessionManager) ClearSession() error {
	if err := os.Remove(sm.sessionPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
