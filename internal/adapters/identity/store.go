// Package identity is the engine's source of truth for who a principal
// is. The store is in-memory; swapping in a database only means
// implementing core.IdentityResolver elsewhere.
package identity

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/parlorchat/parlor/internal/core"
	"github.com/parlorchat/parlor/internal/domain"
)

var (
	ErrNameTaken      = errors.New("name already taken")
	ErrBadCredentials = errors.New("bad credentials")
)

type record struct {
	user domain.User
	hash []byte
}

type Store struct {
	mu     sync.RWMutex
	nextID domain.UserID
	byID   map[domain.UserID]*record
	byName map[string]domain.UserID
}

// compile-time check that the store can back the engine.
var _ core.IdentityResolver = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		nextID: 1,
		byID:   make(map[domain.UserID]*record),
		byName: make(map[string]domain.UserID),
	}
}

func (s *Store) Register(name, password string, avatarRef *string) (*domain.User, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}
	if len(password) < domain.MinPasswordLen {
		return nil, domain.ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[name]; exists {
		return nil, ErrNameTaken
	}
	id := s.nextID
	s.nextID++
	rec := &record{
		user: domain.User{ID: id, Name: name, AvatarRef: avatarRef},
		hash: hash,
	}
	s.byID[id] = rec
	s.byName[name] = id
	u := rec.user
	return &u, nil
}

func (s *Store) Authenticate(name, password string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byName[name]
	var rec *record
	if ok {
		rec = s.byID[id]
	}
	s.mu.RUnlock()
	if rec == nil {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	u := rec.user
	return &u, nil
}

func (s *Store) FindByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

// UpdateProfile persists new identity fields and returns the updated user.
func (s *Store) UpdateProfile(id domain.UserID, name string, avatarRef *string) (*domain.User, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	if name != rec.user.Name {
		if _, exists := s.byName[name]; exists {
			return nil, ErrNameTaken
		}
		delete(s.byName, rec.user.Name)
		s.byName[name] = id
		rec.user.Name = name
	}
	rec.user.AvatarRef = avatarRef
	u := rec.user
	return &u, nil
}
