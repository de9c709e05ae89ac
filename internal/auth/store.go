// Package auth holds the session credentials: an API token in the system
// keychain (with a plain-file fallback for headless machines) and the
// organization id in the ordinary state file.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	keyringService = "agentdeck"
	keyringUser    = "api-token"

	stateFile = "state.yml"
	tokenFile = "token" // fallback only, 0600
)

// Keyring is the subset of the system keychain the store uses.
// Abstracted so tests never touch the real keychain.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

type systemKeyring struct{}

func (systemKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (systemKeyring) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}
func (systemKeyring) Delete(service, user string) error { return keyring.Delete(service, user) }

// state models state.yml. The org id is not a secret and lives in plain
// persisted settings, unlike the token.
type state struct {
	OrgID *int `yaml:"org_id,omitempty"`
}

// Store reads and writes session credentials.
type Store struct {
	dir     string
	secrets Keyring
	logger  *slog.Logger
}

// NewStore creates a store rooted at the user config dir.
func NewStore(logger *slog.Logger) (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return NewStoreAt(filepath.Join(base, "agentdeck"), systemKeyring{}, logger), nil
}

// NewStoreAt creates a store rooted at dir with an explicit keychain.
func NewStoreAt(dir string, secrets Keyring, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, secrets: secrets, logger: logger}
}

// Token returns the stored API token, or "" when none is stored.
func (s *Store) Token() (string, error) {
	tok, err := s.secrets.Get(keyringService, keyringUser)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		// No usable keychain on this machine; try the file fallback.
		s.logger.Debug("keychain read failed, trying file fallback", "err", err)
	}
	data, ferr := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if ferr != nil {
		if os.IsNotExist(ferr) {
			return "", nil
		}
		return "", ferr
	}
	return string(data), nil
}

// SetToken stores the API token, preferring the system keychain.
func (s *Store) SetToken(token string) error {
	err := s.secrets.Set(keyringService, keyringUser, token)
	if err == nil {
		// A stale fallback file must not shadow the keychain later.
		os.Remove(filepath.Join(s.dir, tokenFile))
		return nil
	}
	s.logger.Warn("keychain unavailable, storing token in config dir", "err", err)
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, tokenFile), []byte(token), 0o600)
}

// DeleteToken removes the token from the keychain and the fallback file.
// A broken keychain service doesn't block logout; nothing can be stored in
// it on such a machine anyway.
func (s *Store) DeleteToken() error {
	if kerr := s.secrets.Delete(keyringService, keyringUser); kerr != nil && !errors.Is(kerr, keyring.ErrNotFound) {
		s.logger.Debug("keychain delete failed", "err", kerr)
	}
	ferr := os.Remove(filepath.Join(s.dir, tokenFile))
	if ferr != nil && os.IsNotExist(ferr) {
		ferr = nil
	}
	return ferr
}

// OrgID returns the stored organization id, if any.
func (s *Store) OrgID() (int, bool) {
	st, err := s.readState()
	if err != nil || st.OrgID == nil {
		return 0, false
	}
	return *st.OrgID, true
}

// SetOrgID persists the organization id.
func (s *Store) SetOrgID(id int) error {
	st, _ := s.readState()
	st.OrgID = &id
	return s.writeState(st)
}

// ClearOrgID removes the organization id from the state file.
func (s *Store) ClearOrgID() error {
	st, err := s.readState()
	if err != nil || st.OrgID == nil {
		return nil
	}
	st.OrgID = nil
	return s.writeState(st)
}

// IsAuthenticated reports whether a session exists. Deliberately checks only
// the org id, not token presence: a revoked token shows up as a 401 on the
// next call, which forces a logout.
func (s *Store) IsAuthenticated() bool {
	_, ok := s.OrgID()
	return ok
}

// Login stores both halves of the session.
func (s *Store) Login(token string, orgID int) error {
	if err := s.SetToken(token); err != nil {
		return err
	}
	if err := s.SetOrgID(orgID); err != nil {
		// A token without an org id is useless; keep login atomic.
		s.DeleteToken()
		return err
	}
	return nil
}

// Logout clears the whole session. This is also the 401 side-effect target.
func (s *Store) Logout() error {
	terr := s.DeleteToken()
	oerr := s.ClearOrgID()
	if terr != nil {
		return terr
	}
	return oerr
}

func (s *Store) readState() (state, error) {
	var st state
	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, err
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return state{}, fmt.Errorf("invalid state file: %w", err)
	}
	return st, nil
}

func (s *Store) writeState(st state) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, stateFile), data, 0o644)
}
