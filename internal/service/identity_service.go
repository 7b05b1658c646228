/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/identity"
)

// Identity events
const (
	EventIdentityCreated  = "identityCreated"
	EventIdentityRestored = "identityRestored"
	EventProfileUpdated   = "profileUpdated"
)

type IdentityService interface {
	Create(displayName string) (*identity.PublicIdentity, string, error)           // Generates a new identity, returning it with its recovery phrase
	Restore(phrase, displayName string) (*identity.PublicIdentity, error)          // Rebuilds an identity from its recovery phrase
	Current() (*identity.PublicIdentity, error)                                    // Returns the loaded identity
	UpdateProfile(update identity.ProfileUpdate) (*identity.PublicIdentity, error) // Changes display name, status or avatar
	Unload()                                                                       // Forgets the loaded identity
}

type identityService struct {
	ctx *RuntimeContext
}

func NewIdentityService(ctx *RuntimeContext) IdentityService {
	return &identityService{ctx}
}

func (s *identityService) Create(displayName string) (*identity.PublicIdentity, string, error) {
	if _, err := s.ctx.Identity(); err == nil {
		return nil, "", apperr.New(apperr.IdentityExists, "an identity is already loaded")
	}
	id, phrase, err := identity.Create(displayName)
	if err != nil {
		return nil, "", err
	}
	s.ctx.SetIdentity(id)

	public := id.Public()
	s.ctx.Logf("Created identity %s", public.Did)
	s.ctx.Publish(DomainIdentity, EventIdentityCreated, public)
	return &public, phrase.Phrase(), nil
}

func (s *identityService) Restore(phrase, displayName string) (*identity.PublicIdentity, error) {
	parsed, err := identity.ParseRecoveryPhrase(phrase)
	if err != nil {
		return nil, err
	}
	id, err := identity.FromRecoveryPhrase(parsed, displayName)
	if err != nil {
		return nil, err
	}
	s.ctx.SetIdentity(id)

	public := id.Public()
	s.ctx.Logf("Restored identity %s", public.Did)
	s.ctx.Publish(DomainIdentity, EventIdentityRestored, public)
	return &public, nil
}

func (s *identityService) Current() (*identity.PublicIdentity, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}
	public := id.Public()
	return &public, nil
}

func (s *identityService) UpdateProfile(update identity.ProfileUpdate) (*identity.PublicIdentity, error) {
	id, err := s.ctx.Identity()
	if err != nil {
		return nil, err
	}

	s.ctx.mutex.Lock()
	err = id.UpdateProfile(update)
	public := id.Public()
	s.ctx.mutex.Unlock()
	if err != nil {
		return nil, err
	}

	s.ctx.Publish(DomainIdentity, EventProfileUpdated, public)
	return &public, nil
}

func (s *identityService) Unload() {
	s.ctx.SetIdentity(nil)
}
