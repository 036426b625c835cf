// Package pipeline defines named, ordered agent step sequences and the
// read-only catalog the engine resolves them from.
//
// A step is either a PlainStep or a GatekeeperStep. Gatekeeper steps carry
// the decision rule that turns a technically valid agent output into a
// business rejection; a zero rule means "use the agent's own decision".
//
// The catalog is built once at startup from Builtin() plus optional YAML
// declarations and is never extended from request input.
package pipeline
