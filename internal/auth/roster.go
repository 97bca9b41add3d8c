package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Roster holds user accounts. Account master data is maintained elsewhere;
// the engine only needs lookup by credential or username, seeded from
// configuration and editable through the admin surface.
type Roster struct {
	mu    sync.RWMutex
	users map[string]*User // by ID
}

func NewRoster() *Roster {
	return &Roster{users: make(map[string]*User)}
}

// Put inserts or replaces a user by ID.
func (r *Roster) Put(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := u
	r.users[u.ID] = &cp
}

func (r *Roster) Get(id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (r *Roster) GetByUsername(username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Username == username {
			return *u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *Roster) GetByCredential(credential string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Credential == credential {
			return *u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *Roster) List() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out
}

// HashPassword produces a bcrypt hash for seeding rosters from plain
// configuration values.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
