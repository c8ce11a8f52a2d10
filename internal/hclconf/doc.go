// Package hclconf loads the optional declarative run configuration. It
// lets a bisection session keep its limits, action mapping, blacklist and
// nix options in one HCL file instead of repeating them as flags on every
// invocation. All tokens are validated at load time.
package hclconf
