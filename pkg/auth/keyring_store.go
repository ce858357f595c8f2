package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const keyringService = "pixivcrawl"

// keyringEntryPrefix names cookie entries "cookie:<account>"
const keyringEntryPrefix = "cookie:"

// keyringIndex holds the JSON list of account names. go-keyring cannot
// enumerate a keychain.
const keyringIndex = "accounts"

// KeyringStore keeps pixiv session cookies in the OS keychain (Keychain,
// Secret Service or Windows Credential Manager). Each account is one JSON
// entry; a separate index entry makes `auth list` possible.
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore returns an error when no keychain is reachable, for
// example on a headless Linux box without a Secret Service daemon.
func NewKeyringStore() (*KeyringStore, error) {
	probe := keyringEntryPrefix + "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	entry, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to encode cookie for %q: %w", account.Name, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringEntryPrefix+account.Name, string(entry)); err != nil {
		return fmt.Errorf("failed to save cookie in keyring: %w", err)
	}

	names, err := k.names()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == account.Name {
			return nil
		}
	}
	return k.saveNames(append(names, account.Name))
}

func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	entry, err := keyring.Get(keyringService, keyringEntryPrefix+name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(entry), &account); err != nil {
		return nil, fmt.Errorf("keyring entry for %q is corrupt: %w", name, err)
	}
	return &account, nil
}

// List returns the indexed accounts. Names whose entry was removed outside
// pixivcrawl are skipped.
func (k *KeyringStore) List() ([]*Account, error) {
	k.mu.Lock()
	names, err := k.names()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0, len(names))
	for _, name := range names {
		account, err := k.Retrieve(name)
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	err := keyring.Delete(keyringService, keyringEntryPrefix+name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete cookie from keyring: %w", err)
	}

	names, err := k.names()
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	return k.saveNames(kept)
}

func (k *KeyringStore) Exists(name string) bool {
	account, err := k.Retrieve(name)
	return err == nil && account != nil
}

// names reads the account index; callers hold mu
func (k *KeyringStore) names() ([]string, error) {
	raw, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring account index: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		// A damaged index only costs listing; entries are still readable.
		return nil, nil
	}
	return names, nil
}

func (k *KeyringStore) saveNames(names []string) error {
	if len(names) == 0 {
		err := keyring.Delete(keyringService, keyringIndex)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring account index: %w", err)
		}
		return nil
	}

	sort.Strings(names)
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode keyring account index: %w", err)
	}
	if err := keyring.Set(keyringService, keyringIndex, string(raw)); err != nil {
		return fmt.Errorf("failed to save keyring account index: %w", err)
	}
	return nil
}
