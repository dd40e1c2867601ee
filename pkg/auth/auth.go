// Package auth provides the user store behind the CREATE USER, DROP USER
// and SET PASSWORD statements. Passwords are hashed with bcrypt; the
// store keeps hashes only.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store is an in-memory credential store. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[string]*user
	cost  int
}

type user struct {
	name string
	hash []byte
}

// NewStore returns an empty store hashing at the default bcrypt cost.
func NewStore() *Store {
	return &Store{users: make(map[string]*user), cost: bcrypt.DefaultCost}
}

// CreateUser registers name with the given password.
func (s *Store) CreateUser(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[name]; exists {
		return fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	s.users[name] = &user{name: name, hash: hash}
	return nil
}

// DropUser removes name from the store.
func (s *Store) DropUser(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	delete(s.users, name)
	return nil
}

// SetPassword replaces the stored hash for name.
func (s *Store) SetPassword(name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, exists := s.users[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUserNotFound, name)
	}
	u.hash = hash
	return nil
}

// Verify checks name's password against the stored hash.
func (s *Store) Verify(name, password string) error {
	s.mu.RLock()
	u, exists := s.users[name]
	s.mu.RUnlock()
	if !exists {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Users lists registered user names.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	return names
}
