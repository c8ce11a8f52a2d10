// Package status defines the closed vocabulary of build outcomes consumed
// by the bisection driver and the evaluation driver that produces exactly
// one of them per invocation.
package status
