package repository

import (
	"context"
	"sort"
	"sync"

	kmsDomain "github.com/allisson/fieldcrypt/internal/kms/domain"
)

// MemoryMasterKeyRepository keeps master key metadata in process memory. It backs the
// "memory" database driver used for local development and tests; everything is lost on
// restart, including the knowledge of which keys exist.
type MemoryMasterKeyRepository struct {
	mu      sync.RWMutex
	keys    map[string]*kmsDomain.MasterKey
	aliases map[string]*kmsDomain.Alias
}

// NewMemoryMasterKeyRepository creates an empty in-memory repository.
func NewMemoryMasterKeyRepository() *MemoryMasterKeyRepository {
	return &MemoryMasterKeyRepository{
		keys:    make(map[string]*kmsDomain.MasterKey),
		aliases: make(map[string]*kmsDomain.Alias),
	}
}

// Create stores a copy of key.
func (r *MemoryMasterKeyRepository) Create(ctx context.Context, key *kmsDomain.MasterKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key.ID]; ok {
		return kmsDomain.ErrMasterKeyAlreadyExists
	}
	r.keys[key.ID] = cloneMasterKey(key)
	return nil
}

// Update replaces the stored key.
func (r *MemoryMasterKeyRepository) Update(ctx context.Context, key *kmsDomain.MasterKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key.ID]; !ok {
		return kmsDomain.ErrMasterKeyNotFound
	}
	r.keys[key.ID] = cloneMasterKey(key)
	return nil
}

// Get returns a copy of the stored key.
func (r *MemoryMasterKeyRepository) Get(ctx context.Context, id string) (*kmsDomain.MasterKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[id]
	if !ok {
		return nil, kmsDomain.ErrMasterKeyNotFound
	}
	return cloneMasterKey(key), nil
}

// CreateAlias stores a new alias.
func (r *MemoryMasterKeyRepository) CreateAlias(ctx context.Context, alias *kmsDomain.Alias) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.aliases[alias.Name]; ok {
		return kmsDomain.ErrAliasAlreadyExists
	}
	a := *alias
	r.aliases[alias.Name] = &a
	return nil
}

// GetAlias returns a copy of the alias.
func (r *MemoryMasterKeyRepository) GetAlias(ctx context.Context, name string) (*kmsDomain.Alias, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alias, ok := r.aliases[name]
	if !ok {
		return nil, kmsDomain.ErrAliasNotFound
	}
	a := *alias
	return &a, nil
}

// ListAliases returns every alias ordered by name.
func (r *MemoryMasterKeyRepository) ListAliases(ctx context.Context) ([]*kmsDomain.Alias, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make([]*kmsDomain.Alias, 0, len(r.aliases))
	for _, alias := range r.aliases {
		a := *alias
		aliases = append(aliases, &a)
	}
	sort.Slice(aliases, func(i, j int) bool { return aliases[i].Name < aliases[j].Name })
	return aliases, nil
}

func cloneMasterKey(key *kmsDomain.MasterKey) *kmsDomain.MasterKey {
	c := *key
	if key.Tags != nil {
		c.Tags = make(map[string]string, len(key.Tags))
		for k, v := range key.Tags {
			c.Tags[k] = v
		}
	}
	if key.Aliases != nil {
		c.Aliases = append([]string(nil), key.Aliases...)
	}
	if key.DeletionDate != nil {
		d := *key.DeletionDate
		c.DeletionDate = &d
	}
	return &c
}
