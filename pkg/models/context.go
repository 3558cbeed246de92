package models

// ctxKey is a private type so context values set with it can't collide
// with keys set by other packages.
type ctxKey int

// ErrGroupKey is the context key the raw-event ingress adapter looks up
// to find the *errgroup.Group its reader loops register themselves on,
// mirroring the teacher's own context-borne errgroup handoff.
const ErrGroupKey ctxKey = iota
