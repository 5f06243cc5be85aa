// Package tenant carries organization-scoped metadata through an invocation's
// execution for isolation and observability.
//
// The executor attaches a Context to the handler's context.Context immediately
// before the handler call and detaches it unconditionally afterwards, success
// or failure. Tenant state is never shared across invocations, never stored in
// globals, and never persisted; propagation is always an explicit context
// parameter, not thread-local state.
package tenant
