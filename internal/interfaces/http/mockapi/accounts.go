package mockapi

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Account errors
var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// account holds the login data of a user; the public fields live in the usuarios collection
type account struct {
	id       int64
	username string
	rol      string
	hash     []byte
}

type accounts struct {
	cost int

	mu     sync.RWMutex
	byName map[string]*account
	byID   map[int64]*account
}

func newAccounts(cost int) *accounts {
	return &accounts{
		cost:   cost,
		byName: make(map[string]*account),
		byID:   make(map[int64]*account),
	}
}

func (a *accounts) taken(username string, except int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.byName[username]
	return ok && acc.id != except
}

func (a *accounts) set(id int64, username, rol, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.byName[username]; ok && acc.id != id {
		return ErrUsernameTaken
	}
	if old, ok := a.byID[id]; ok {
		delete(a.byName, old.username)
	}
	acc := &account{id: id, username: username, rol: rol, hash: hash}
	a.byName[username] = acc
	a.byID[id] = acc
	return nil
}

// rename updates username and role of an account, keeping its password
func (a *accounts) rename(id int64, username, rol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc, ok := a.byID[id]
	if !ok {
		return nil
	}
	if other, ok := a.byName[username]; ok && other.id != id {
		return ErrUsernameTaken
	}
	delete(a.byName, acc.username)
	updated := &account{id: id, username: username, rol: rol, hash: acc.hash}
	a.byName[username] = updated
	a.byID[id] = updated
	return nil
}

func (a *accounts) remove(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if acc, ok := a.byID[id]; ok {
		delete(a.byName, acc.username)
		delete(a.byID, id)
	}
}

// authenticate checks a password with bcrypt
func (a *accounts) authenticate(username, password string) (*account, error) {
	a.mu.RLock()
	acc, ok := a.byName[username]
	a.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}
