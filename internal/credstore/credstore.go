// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package credstore reads, writes, deletes, and refreshes OAuth credential
// blobs kept in an OS-native secret store, keyed by a service name derived
// from the owning profile directory.
package credstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/99designs/keyring"
)

// Error kinds returned by Store methods. These are returned as data, not
// panicked, so callers (the usage client, the scorer) can treat a failed
// credential read as just another ineligible account.
const (
	ErrNoCredentials       = "no_credentials"
	ErrNoRefreshToken      = "no_refresh_token"
	ErrParseFailed         = "parse_failed"
	ErrInvalidTokenFormat  = "invalid_token_format"
	ErrKeychainWriteFailed = "keychain_write_failed"
	ErrTimeout             = "timeout"
	ErrUnsupportedPlatform = "unsupported_platform"
)

// accessTokenPrefix is the fixed prefix every valid access token begins
// with.
const accessTokenPrefix = "sk-ant-oat"

const defaultServiceName = "hoff-credentials"

const oauthTokenEndpoint = "https://console.anthropic.com/v1/oauth/token"
const oauthClientID = "hoff-supervisor"

const refreshTimeout = 10 * time.Second

// Blob is a credential record for one profile.
type Blob struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`

	// Error carries an error kind instead of the fields above when a read
	// or refresh failed.
	Error string `json:"-"`
}

// StoreError is a credential-store failure, described by one of the Err*
// kind constants.
type StoreError struct {
	Kind string
}

func (e *StoreError) Error() string { return e.Kind }

// Store reads and writes credential blobs against an OS-native secret
// store, falling back to a 0600 JSON file inside the profile directory
// when no native backend is available.
type Store struct {
	ring           keyring.Keyring
	defaultProfile string
	httpClient     *http.Client
}

// New opens a Store. defaultProfile is the system-default profile
// directory, used to pick the fixed service name.
func New(defaultProfile string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              defaultServiceName,
		FileDir:                  "",
		FilePasswordFunc:         keyring.FixedStringPrompt(""),
		AllowedBackends:          nil,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, &StoreError{Kind: ErrUnsupportedPlatform}
	}
	return &Store{ring: ring, defaultProfile: defaultProfile, httpClient: &http.Client{}}, nil
}

// serviceName derives the secret-store key for profileDir: the fixed name
// for the system default, or the fixed name suffixed with the first 8 hex
// characters of SHA-256 over the expanded path otherwise.
func (s *Store) serviceName(profileDir string) string {
	if strings.HasPrefix(profileDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			profileDir = filepath.Join(home, profileDir[2:])
		}
	}
	if profileDir == s.defaultProfile {
		return defaultServiceName
	}
	sum := sha256.Sum256([]byte(profileDir))
	return fmt.Sprintf("%s-%s", defaultServiceName, hex.EncodeToString(sum[:])[:8])
}

// Read fetches the credential blob for profileDir. A missing entry is
// reported as Blob.Error = no_credentials, not as a Go error, so callers
// can treat it uniformly with a failed usage snapshot.
func (s *Store) Read(profileDir string) Blob {
	item, err := s.ring.Get(s.serviceName(profileDir))
	if err != nil {
		if fallback, ferr := readFallbackFile(profileDir); ferr == nil {
			return fallback
		}
		return Blob{Error: ErrNoCredentials}
	}

	var blob Blob
	if err := json.Unmarshal(item.Data, &blob); err != nil {
		return Blob{Error: ErrParseFailed}
	}
	return blob
}

// Write persists blob for profileDir, preferring the native keyring and
// falling back to an atomic 0600 file.
func (s *Store) Write(profileDir string, blob Blob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return &StoreError{Kind: ErrParseFailed}
	}

	if err := s.ring.Set(keyring.Item{
		Key:  s.serviceName(profileDir),
		Data: data,
	}); err != nil {
		if werr := writeFallbackFile(profileDir, data); werr != nil {
			return &StoreError{Kind: ErrKeychainWriteFailed}
		}
		return nil
	}
	return nil
}

// Delete removes the credential blob for profileDir from both the native
// store and the fallback file, if present.
func (s *Store) Delete(profileDir string) error {
	_ = s.ring.Remove(s.serviceName(profileDir))
	_ = os.Remove(fallbackPath(profileDir))
	return nil
}

// IsExpired reports whether blob's access token has passed its expiry.
func IsExpired(blob Blob) bool {
	if blob.ExpiresAt == 0 {
		return true
	}
	return time.Now().UnixMilli() >= blob.ExpiresAt
}

type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error,omitempty"`
}

// Refresh exchanges the profile's refresh token for a new access token and
// persists the result before returning it — refresh tokens are single-use,
// so a crash between receiving and persisting new tokens loses the
// account, and this ordering is the only defense against that.
func (s *Store) Refresh(ctx context.Context, profileDir string) (Blob, error) {
	current := s.Read(profileDir)
	if current.Error != "" {
		return Blob{}, &StoreError{Kind: current.Error}
	}
	if current.RefreshToken == "" {
		return Blob{}, &StoreError{Kind: ErrNoRefreshToken}
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	reqBody, err := json.Marshal(refreshRequest{
		GrantType:    "refresh_token",
		RefreshToken: current.RefreshToken,
		ClientID:     oauthClientID,
	})
	if err != nil {
		return Blob{}, &StoreError{Kind: ErrParseFailed}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Blob{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Blob{}, &StoreError{Kind: ErrTimeout}
		}
		return Blob{}, err
	}
	defer resp.Body.Close()

	var parsed refreshResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&parsed); decErr != nil && resp.StatusCode < 300 {
		return Blob{}, &StoreError{Kind: ErrParseFailed}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != "" {
			return Blob{}, fmt.Errorf("%s", parsed.Error)
		}
		return Blob{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if !validAccessTokenFormat(parsed.AccessToken) {
		return Blob{}, &StoreError{Kind: ErrInvalidTokenFormat}
	}

	next := current
	next.AccessToken = parsed.AccessToken
	if parsed.RefreshToken != "" {
		next.RefreshToken = parsed.RefreshToken
	}
	next.ExpiresAt = time.Now().UnixMilli() + parsed.ExpiresIn*1000

	if err := s.Write(profileDir, next); err != nil {
		return Blob{}, err
	}
	return next, nil
}

func validAccessTokenFormat(token string) bool {
	return len(token) > len(accessTokenPrefix) && token[:len(accessTokenPrefix)] == accessTokenPrefix
}

func fallbackPath(profileDir string) string {
	return filepath.Join(profileDir, ".hoff-credentials.json")
}

func readFallbackFile(profileDir string) (Blob, error) {
	data, err := os.ReadFile(fallbackPath(profileDir))
	if err != nil {
		return Blob{}, err
	}
	var blob Blob
	if err := json.Unmarshal(data, &blob); err != nil {
		return Blob{Error: ErrParseFailed}, nil
	}
	return blob, nil
}

func writeFallbackFile(profileDir string, data []byte) error {
	path := fallbackPath(profileDir)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
