// Package cache implements the response cache: content-derived keys,
// surrogate-tag invalidation, and entity partial-hit merging, sitting in
// front of the subgraph fetcher the way gateway's schemaStore sits in front
// of query execution.
package cache

import (
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

// Control mirrors a subgraph's Cache-Control response header in the fields
// that drive storage decisions.
type Control struct {
	MaxAge  time.Duration
	NoStore bool
	Private bool
}

// Merge combines two Cache-Control values by the most-restrictive field: the
// smaller MaxAge, NoStore/Private OR'd.
func (c Control) Merge(other Control) Control {
	out := Control{
		MaxAge:  c.MaxAge,
		NoStore: c.NoStore || other.NoStore,
		Private: c.Private || other.Private,
	}
	if other.MaxAge < out.MaxAge {
		out.MaxAge = other.MaxAge
	}
	return out
}

// Entry is one stored response: either a root query result or a single
// entity representation's result.
type Entry struct {
	Key       string
	Value     []byte
	Tags      []string
	ExpiresAt time.Time
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// RootKeyInput is the tuple hashed to derive a root query cache key.
type RootKeyInput struct {
	Version      string
	Subgraph     string
	GraphQLType  string
	QueryHash    string
	Body         string
	AuthMetadata string
	PrivateID    string
}

// EntityKeyInput is the tuple hashed to derive an entity cache key.
type EntityKeyInput struct {
	Subgraph          string
	Typename          string
	NonKeyRepresented string
	KeyFields         string
	QueryHash         string
	ExtraHash         string
	PrivateID         string
}

// RootKey derives the root cache key and its implicit invalidation tag.
func RootKey(in RootKeyInput) (key string, implicitTag string, err error) {
	h, err := hashstructure.Hash(in, hashstructure.FormatV2, nil)
	if err != nil {
		return "", "", err
	}
	return hashToKey(h), implicitRootTag(in.Version, in.Subgraph, in.GraphQLType), nil
}

// EntityKey derives the entity cache key and its implicit invalidation tag.
func EntityKey(in EntityKeyInput, version string) (key string, implicitTag string, err error) {
	h, err := hashstructure.Hash(in, hashstructure.FormatV2, nil)
	if err != nil {
		return "", "", err
	}
	return hashToKey(h), implicitRootTag(version, in.Subgraph, in.Typename), nil
}

func implicitRootTag(version, subgraph, typ string) string {
	return "__internal::version:" + version + ":subgraph:" + subgraph + ":type:" + typ
}

func hashToKey(h uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(buf)
}
