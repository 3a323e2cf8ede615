package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const stateKeySessionID = "session_id"

// state is the CLI's memory between invocations: the session handle created
// by the last start.
type state struct {
	path string
	v    *viper.Viper
}

func loadState(path string) (*state, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read state %s: %w", path, err)
		}
	}
	return &state{path: path, v: v}, nil
}

func (s *state) SessionID() string {
	return strings.TrimSpace(s.v.GetString(stateKeySessionID))
}

func (s *state) SetSessionID(sessionID string) error {
	s.v.Set(stateKeySessionID, strings.TrimSpace(sessionID))
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write state %s: %w", s.path, err)
	}
	return nil
}
