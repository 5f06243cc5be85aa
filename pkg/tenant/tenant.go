package tenant

import (
	"maps"

	"github.com/google/uuid"
)

// Context holds the tenant scope for exactly one invocation: the organization
// the work belongs to plus free-form metadata (plan, locale, feature flags)
// that handlers and observers may read.
type Context struct {
	OrgID    uuid.UUID         `json:"org_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// New creates a tenant context for the given organization.
func New(orgID uuid.UUID) *Context {
	return &Context{OrgID: orgID}
}

// WithMeta returns a copy of the context with the given key set. The receiver
// is not mutated, keeping contexts safe to share between observers.
func (c *Context) WithMeta(key, value string) *Context {
	clone := &Context{OrgID: c.OrgID, Metadata: make(map[string]string, len(c.Metadata)+1)}
	maps.Copy(clone.Metadata, c.Metadata)
	clone.Metadata[key] = value
	return clone
}

// Meta returns the metadata value for key, or "" when absent.
func (c *Context) Meta(key string) string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
