// Package nix wraps the external nix tooling (nix, nix-store,
// nix-instantiate) behind a narrow client. The rest of the application
// queries and realises store paths through it without caring about
// process plumbing or output parsing.
package nix
