// Package relation turns a (source, relation) pair into a related word using
// a local or remote completion provider.
package relation

import (
	"context"
	"fmt"
	"strings"

	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/logger"
)

// Kind selects a provider.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// ParseKind accepts "local", "remote" and "openrouter". Anything else is
// local.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote", "openrouter":
		return KindRemote
	default:
		return KindLocal
	}
}

// Provider resolves one relation.
type Provider interface {
	Resolve(ctx context.Context, source, relation string, opts ...ai.GenerateOption) (string, error)
}

// Fallback is the deterministic answer used whenever a provider cannot
// produce one.
func Fallback(source, relation string) string {
	return relation + "-" + source
}

// Normalize turns a provider answer into a node id.
func Normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

func ask(ctx context.Context, client ai.ChatClient, source, relation string, opts []ai.GenerateOption) (string, error) {
	all := append([]ai.GenerateOption{ai.WithSystemPrompts(ai.RelationSystemPrompt)}, opts...)
	out, err := client.GenerateChat(ctx, ai.RelationMessages(source, relation), all...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// LocalProvider talks to a locally hosted model. It never fails: transport
// errors, bad statuses and empty answers all become the fallback.
type LocalProvider struct {
	Client ai.ChatClient
}

// Resolve implements Provider.
func (p *LocalProvider) Resolve(ctx context.Context, source, relation string, opts ...ai.GenerateOption) (string, error) {
	out, err := ask(ctx, p.Client, source, relation, opts)
	if err != nil {
		logger.Debug("[Relation] local provider failed, using fallback", "source", source, "relation", relation, "err", err)
		return Fallback(source, relation), nil
	}
	if out == "" {
		return Fallback(source, relation), nil
	}
	return out, nil
}

// RemoteProvider talks to a hosted completion API. Unlike LocalProvider it
// reports every failure to its caller.
type RemoteProvider struct {
	Client ai.ChatClient
}

// Resolve implements Provider.
func (p *RemoteProvider) Resolve(ctx context.Context, source, relation string, opts ...ai.GenerateOption) (string, error) {
	if p.Client == nil {
		return "", ai.ErrMissingCredential
	}
	out, err := ask(ctx, p.Client, source, relation, opts)
	if err != nil {
		return "", fmt.Errorf("remote relation lookup: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("remote relation lookup: empty answer")
	}
	return out, nil
}

// Resolver dispatches to the provider for a kind and never fails.
type Resolver struct {
	providers map[Kind]Provider
}

// NewResolver builds a resolver. A nil provider means that kind always
// answers with the fallback.
func NewResolver(local, remote Provider) *Resolver {
	r := &Resolver{providers: map[Kind]Provider{}}
	if local != nil {
		r.providers[KindLocal] = local
	}
	if remote != nil {
		r.providers[KindRemote] = remote
	}
	return r
}

// Resolve returns the trimmed provider answer or the fallback.
func (r *Resolver) Resolve(ctx context.Context, source, relation string, kind Kind, opts ...ai.GenerateOption) string {
	p, ok := r.providers[kind]
	if !ok {
		logger.Warn("[Relation] no provider configured", "kind", kind)
		return Fallback(source, relation)
	}
	out, err := p.Resolve(ctx, source, relation, opts...)
	if err != nil {
		logger.Warn("[Relation] provider failed, using fallback", "kind", kind, "source", source, "relation", relation, "err", err)
		return Fallback(source, relation)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Fallback(source, relation)
	}
	return out
}

// Provider returns the provider registered for kind.
func (r *Resolver) Provider(kind Kind) (Provider, bool) {
	p, ok := r.providers[kind]
	return p, ok
}
