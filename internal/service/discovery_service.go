/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/entity"
	"github.com/InfamousVague/umbra/internal/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Platforms an account can be linked from
const (
	PlatformDiscord = "discord"
	PlatformGitHub  = "github"
	PlatformSteam   = "steam"
	PlatformBluesky = "bluesky"
	PlatformXbox    = "xbox"
)

var platforms = map[string]struct{}{
	PlatformDiscord: {}, PlatformGitHub: {}, PlatformSteam: {}, PlatformBluesky: {}, PlatformXbox: {},
}

const (
	OAuthStateTTL      = 10 * time.Minute
	ProfileResultTTL   = 10 * time.Minute
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxLookupBatch     = 500
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

func validPlatform(platform string) error {
	if _, ok := platforms[platform]; !ok {
		return apperr.New(apperr.InvalidInput, "unknown platform %q", platform)
	}
	return nil
}

// ValidateUsername checks the Name part of a Name#Tag username
func ValidateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return apperr.New(apperr.InvalidInput, "username must be 1 to 32 letters, digits or underscores")
	}
	return nil
}

// SplitUsername parses Name#Tag
func SplitUsername(full string) (name, tag string, err error) {
	name, tag, found := strings.Cut(full, "#")
	if !found || len(tag) != 5 || strings.Trim(tag, "0123456789") != "" {
		return "", "", apperr.New(apperr.InvalidInput, "username %q is not in the Name#00000 form", full)
	}
	return name, tag, ValidateUsername(name)
}

type HashedLookup struct {
	Platform string `json:"platform"`
	IdHash   string `json:"id_hash"`
}

type LookupResult struct {
	Platform string  `json:"platform"`
	IdHash   string  `json:"id_hash"`
	Did      *string `json:"did"`
}

type AccountLink struct {
	Did        string `json:"did"`
	Platform   string `json:"platform"`
	PlatformId string `json:"platform_id"`
	Username   string `json:"platform_username"`
}

type DiscoveryStatus struct {
	Did          string                  `json:"did"`
	Discoverable bool                    `json:"discoverable"`
	Accounts     []*entity.LinkedAccount `json:"accounts"`
	Username     *entity.Username        `json:"username,omitempty"`
}

type SearchResult struct {
	Did      string `json:"did"`
	Platform string `json:"platform"`
	Username string `json:"platform_username"`
}

type OAuthState struct {
	Nonce           string    `json:"nonce"`
	Did             string    `json:"did"` // empty for profile imports
	Platform        string    `json:"platform"`
	ProfileImport   bool      `json:"profile_import"`
	CommunityImport bool      `json:"community_import"`
	CreatedAt       time.Time `json:"created_at"`
}

type profileResult struct {
	profile  json.RawMessage
	storedAt time.Time
}

// DiscoveryService is the relay-hosted directory: salted platform id hashes mapped to DIDs of
// users who opted in, the Name#Tag username registry, and the short lived OAuth bookkeeping
type DiscoveryService interface {
	Hash(platform, platformId string) (string, error) // SHA-256 of salt, platform and id, hex encoded
	Status(did string) (*DiscoveryStatus, error)
	SetDiscoverable(did string, discoverable bool) error
	Link(link AccountLink) (*entity.LinkedAccount, error)
	Unlink(did, platform string) (bool, error)
	Lookup(lookups []HashedLookup) ([]LookupResult, error) // Only discoverable users are matched
	Search(platform, query string, limit int) ([]SearchResult, error)
	Stats() (*repository.DiscoveryStats, error)

	RegisterUsername(did, name string) (*entity.Username, error) // Releases the previous username of did
	ReleaseUsername(did string) (bool, error)
	Username(did string) (*entity.Username, error)
	LookupUsername(full string) (*entity.Username, error) // full is Name#Tag
	SearchUsernames(query string, limit int) ([]*entity.Username, error)

	CreateOAuthState(platform, did string, profileImport, communityImport bool) (*OAuthState, error)
	ConsumeOAuthState(nonce string) (*OAuthState, bool) // Succeeds once per state, within its TTL
	StoreProfileResult(state string, profile json.RawMessage)
	TakeProfileResult(state string) (json.RawMessage, bool)
	Sweep() int                                          // Drops expired OAuth states and stale profile results
	RunCleanup(ctx context.Context, every time.Duration) // Sweeps until ctx is done
}

type discoveryService struct {
	ctx  *RuntimeContext
	salt string

	mutex    sync.Mutex
	states   map[string]*OAuthState
	profiles map[string]*profileResult
}

func NewDiscoveryService(ctx *RuntimeContext, salt string) DiscoveryService {
	return &discoveryService{
		ctx:      ctx,
		salt:     salt,
		states:   make(map[string]*OAuthState),
		profiles: make(map[string]*profileResult),
	}
}

func (s *discoveryService) Hash(platform, platformId string) (string, error) {
	if err := validPlatform(platform); err != nil {
		return "", err
	}
	if platformId == "" {
		return "", apperr.New(apperr.InvalidInput, "platform id must not be empty")
	}
	hasher := sha256.New()
	hasher.Write([]byte(s.salt))
	hasher.Write([]byte(platform))
	hasher.Write([]byte(platformId))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *discoveryService) Status(did string) (*DiscoveryStatus, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	repo := storage.GetDiscoveryRepository()
	status := &DiscoveryStatus{Did: did}
	user, err := repo.GetUser(did)
	switch {
	case err == nil:
		status.Discoverable = user.Discoverable
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, dbError(err)
	}
	if status.Accounts, err = repo.Accounts(did); err != nil {
		return nil, dbError(err)
	}
	username, err := repo.GetUsername(did)
	switch {
	case err == nil:
		status.Username = username
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, dbError(err)
	}
	return status, nil
}

func (s *discoveryService) SetDiscoverable(did string, discoverable bool) error {
	storage, err := s.ctx.Storage()
	if err != nil {
		return err
	}
	if did == "" {
		return apperr.New(apperr.InvalidInput, "did must not be empty")
	}
	return dbError(storage.GetDiscoveryRepository().SetDiscoverable(did, discoverable, s.ctx.NowMillis()))
}

func (s *discoveryService) Link(link AccountLink) (*entity.LinkedAccount, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if link.Did == "" {
		return nil, apperr.New(apperr.InvalidInput, "did must not be empty")
	}
	hash, err := s.Hash(link.Platform, link.PlatformId)
	if err != nil {
		return nil, err
	}
	account := &entity.LinkedAccount{
		Platform: link.Platform,
		IdHash:   hash,
		Did:      link.Did,
		Username: link.Username,
		LinkedAt: s.ctx.NowMillis(),
	}
	if err := storage.GetDiscoveryRepository().LinkAccount(account); err != nil {
		return nil, dbError(err)
	}
	s.ctx.Logf("Linked a %s account to %s", link.Platform, link.Did)
	return account, nil
}

func (s *discoveryService) Unlink(did, platform string) (bool, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return false, err
	}
	if err := validPlatform(platform); err != nil {
		return false, err
	}
	removed, err := storage.GetDiscoveryRepository().UnlinkAccount(did, platform)
	return removed, dbError(err)
}

func (s *discoveryService) Lookup(lookups []HashedLookup) ([]LookupResult, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if len(lookups) > MaxLookupBatch {
		return nil, apperr.New(apperr.InvalidInput, "at most %d lookups per request", MaxLookupBatch)
	}
	hashes := make([]string, 0, len(lookups))
	for _, l := range lookups {
		hashes = append(hashes, l.IdHash)
	}
	found, err := storage.GetDiscoveryRepository().Lookup(hashes)
	if err != nil {
		return nil, dbError(err)
	}
	results := make([]LookupResult, 0, len(lookups))
	for _, l := range lookups {
		result := LookupResult{Platform: l.Platform, IdHash: l.IdHash}
		if did, ok := found[l.IdHash]; ok {
			result.Did = ptr(did)
		}
		results = append(results, result)
	}
	return results, nil
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return min(limit, MaxSearchLimit)
}

func (s *discoveryService) Search(platform, query string, limit int) ([]SearchResult, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	if err := validPlatform(platform); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return []SearchResult{}, nil
	}
	accounts, err := storage.GetDiscoveryRepository().SearchAccounts(platform, strings.TrimSpace(query), searchLimit(limit))
	if err != nil {
		return nil, dbError(err)
	}
	results := make([]SearchResult, 0, len(accounts))
	for _, a := range accounts {
		results = append(results, SearchResult{Did: a.Did, Platform: a.Platform, Username: a.Username})
	}
	return results, nil
}

func (s *discoveryService) Stats() (*repository.DiscoveryStats, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	stats, err := storage.GetDiscoveryRepository().Stats()
	return stats, dbError(err)
}

func (s *discoveryService) RegisterUsername(did, name string) (*entity.Username, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := ValidateUsername(name); err != nil {
		return nil, err
	}
	username, err := storage.GetDiscoveryRepository().RegisterUsername(did, name, s.ctx.NowMillis())
	switch {
	case errors.Is(err, repository.ErrUsernameFull):
		return nil, apperr.New(apperr.Conflict, "no tags left for %s", name)
	case errors.Is(err, repository.ErrUsernameTaken):
		return nil, apperr.New(apperr.Conflict, "%s was taken concurrently, try again", name)
	case err != nil:
		return nil, dbError(err)
	}
	s.ctx.Logf("Username %s registered for %s", username.Full(), did)
	return username, nil
}

func (s *discoveryService) ReleaseUsername(did string) (bool, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return false, err
	}
	released, err := storage.GetDiscoveryRepository().ReleaseUsername(did)
	return released, dbError(err)
}

func (s *discoveryService) Username(did string) (*entity.Username, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	username, err := storage.GetDiscoveryRepository().GetUsername(did)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "%s has no username", did)
	}
	return username, nil
}

func (s *discoveryService) LookupUsername(full string) (*entity.Username, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	name, tag, err := SplitUsername(full)
	if err != nil {
		return nil, err
	}
	username, err := storage.GetDiscoveryRepository().LookupUsername(name, tag)
	if err != nil {
		return nil, notFound(err, apperr.EntityNotFound, "username %s not found", full)
	}
	return username, nil
}

func (s *discoveryService) SearchUsernames(query string, limit int) ([]*entity.Username, error) {
	storage, err := s.ctx.Storage()
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []*entity.Username{}, nil
	}
	usernames, err := storage.GetDiscoveryRepository().SearchUsernames(query, searchLimit(limit))
	return usernames, dbError(err)
}

func (s *discoveryService) CreateOAuthState(platform, did string, profileImport, communityImport bool) (*OAuthState, error) {
	if err := validPlatform(platform); err != nil {
		return nil, err
	}
	if did == "" && !profileImport {
		return nil, apperr.New(apperr.InvalidInput, "linking an account needs a did")
	}
	state := &OAuthState{
		Nonce:           uuid.NewString(),
		Did:             did,
		Platform:        platform,
		ProfileImport:   profileImport,
		CommunityImport: communityImport,
		CreatedAt:       s.ctx.Now(),
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.states[state.Nonce] = state
	return state, nil
}

func (s *discoveryService) ConsumeOAuthState(nonce string) (*OAuthState, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, ok := s.states[nonce]
	if !ok {
		return nil, false
	}
	delete(s.states, nonce)
	if s.ctx.Now().Sub(state.CreatedAt) > OAuthStateTTL {
		return nil, false
	}
	return state, true
}

func (s *discoveryService) StoreProfileResult(state string, profile json.RawMessage) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.profiles[state] = &profileResult{profile: profile, storedAt: s.ctx.Now()}
}

func (s *discoveryService) TakeProfileResult(state string) (json.RawMessage, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, ok := s.profiles[state]
	if !ok {
		return nil, false
	}
	delete(s.profiles, state)
	if s.ctx.Now().Sub(result.storedAt) > ProfileResultTTL {
		return nil, false
	}
	return result.profile, true
}

func (s *discoveryService) Sweep() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.ctx.Now()
	dropped := 0
	for nonce, state := range s.states {
		if now.Sub(state.CreatedAt) > OAuthStateTTL {
			delete(s.states, nonce)
			dropped++
		}
	}
	for key, result := range s.profiles {
		if now.Sub(result.storedAt) > ProfileResultTTL {
			delete(s.profiles, key)
			dropped++
		}
	}
	return dropped
}

func (s *discoveryService) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.ctx.Logf("Discovery sweep dropped %d expired entries", n)
			}
		}
	}
}
