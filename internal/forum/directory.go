package forum

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/cryptoforum/internal/database"
	"github.com/npezzotti/cryptoforum/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,15}$`)

const minPasswordLength = 6

type OAuthProfile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Directory is the registry of user accounts keyed by email.
type Directory struct {
	mu    sync.RWMutex
	users map[string]types.User
	repo  database.StateRepository
	log   zerolog.Logger
	now   func() time.Time
}

func NewDirectory(repo database.StateRepository, logger zerolog.Logger) *Directory {
	return &Directory{
		users: make(map[string]types.User),
		repo:  repo,
		log:   logger,
		now:   time.Now,
	}
}

func (d *Directory) Load(ctx context.Context) {
	users := make(map[string]types.User)
	if _, err := d.repo.Load(ctx, database.KeyUsers, &users); err != nil {
		d.log.Error().Err(err).Msg("load users, starting empty")
		users = make(map[string]types.User)
	}

	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return invalid("Username must be 3-15 characters: letters, numbers and underscores only")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return invalid("Please enter a valid email address")
	}
	return nil
}

// Register creates an account with a password. Registering again with
// the same email replaces the account, keeping its username.
func (d *Directory) Register(email, username, password string) (types.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return types.User{}, err
	}
	if len(password) < minPasswordLength {
		return types.User{}, invalid("Password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	return d.put(types.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	})
}

// CompleteOAuth registers an externally authenticated profile under the
// chosen username.
func (d *Directory) CompleteOAuth(profile OAuthProfile, username string) (types.User, error) {
	email := normalizeEmail(profile.Email)
	if err := validateEmail(email); err != nil {
		return types.User{}, err
	}

	return d.put(types.User{
		Email:             email,
		Username:          username,
		ProfilePictureUrl: profile.Picture,
	})
}

func (d *Directory) put(u types.User) (types.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.users[u.Email]; ok {
		// usernames are immutable once set
		u.Username = existing.Username
		u.AccountCreatedAt = existing.AccountCreatedAt
	} else {
		if err := ValidateUsername(u.Username); err != nil {
			return types.User{}, err
		}
		for _, other := range d.users {
			if strings.EqualFold(other.Username, u.Username) {
				return types.User{}, invalid("Username is already taken")
			}
		}
		u.AccountCreatedAt = d.now().UnixMilli()
	}

	d.users[u.Email] = u
	d.persist()
	return u, nil
}

// Authenticate checks an email and password pair.
func (d *Directory) Authenticate(email, password string) (types.User, error) {
	d.mu.RLock()
	u, ok := d.users[normalizeEmail(email)]
	d.mu.RUnlock()

	if !ok || u.PasswordHash == "" {
		return types.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (d *Directory) ByUsername(username string) (types.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.users {
		if u.Username == username {
			return u, true
		}
	}
	return types.User{}, false
}

// Usernames returns every registered username in lexical order.
func (d *Directory) Usernames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.users))
	for _, u := range d.users {
		names = append(names, u.Username)
	}
	slices.Sort(names)
	return names
}

func (d *Directory) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := d.repo.Save(ctx, database.KeyUsers, d.users); err != nil {
		d.log.Error().Err(err).Msg("persist users")
	}
}
