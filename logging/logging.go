// Package logging hands out a structured logger per component, the same
// small-injected-dependency convention the teacher used for its crypto
// provider, applied here to observability instead.
package logging

import "go.uber.org/zap"

// New builds a development-friendly zap logger. Production deployment is
// an external collaborator's concern (spec.md §1's settings/logging
// bootstrap is out of scope); this only wires the ambient logging calls
// every in-scope component makes.
func New() (*zap.Logger, error) {
	return zap.NewDevelopment()
}

// Component returns a named, structured sub-logger for one package, e.g.
// Component(base, "state") tags every record from the Authenticated State
// Engine.
func Component(base *zap.Logger, name string) *zap.SugaredLogger {
	return base.Named(name).Sugar()
}
