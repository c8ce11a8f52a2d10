// Package dag models the dependency structure between derivations as a
// Directed Acyclic Graph. Its single job is to give the evaluator a
// deterministic order in which to visit the store paths that need to be
// realised, so that the first failing dependency reported for a given graph
// state is always the same one.
package dag
