package auth

import (
	"os"
)

const (
	envCookie    = "PIXIVCRAWL_COOKIE"
	envUserAgent = "PIXIVCRAWL_USER_AGENT"
)

// EnvironmentStore is a read-only store over PIXIVCRAWL_COOKIE
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment cookie under any requested name
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	cookie := os.Getenv(envCookie)
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = DefaultAccount
	}

	// LastModified stays zero so saved accounts win in Manager.List
	return &Account{
		Name:      name,
		Cookie:    cookie,
		UserAgent: os.Getenv(envUserAgent),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(envCookie) != ""
}
