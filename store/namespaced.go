package store

import "context"

type namespaced struct {
	repo   Repo
	prefix string
}

// Namespaced prefixes every key with prefix so several sessions can share one Repo.
func Namespaced(repo Repo, prefix string) Repo {
	if prefix == "" {
		return repo
	}
	return &namespaced{repo: repo, prefix: prefix}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.repo.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.repo.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.repo.Delete(ctx, n.prefix+key)
}
