// Package action translates build outcomes into the exit codes understood
// by a git-bisect style driver. Configuration is validated exhaustively
// when it is constructed, never at mapping time.
package action
