// Package guest implements guest sessions and the instance registry.
//
// The registry is the single authority over session creation and destruction.
// Embedding elements never own sessions; a session carries at most a
// back-reference to the element currently bound to it. A session that stays
// unowned past one control-loop tick is reaped by the registry's sweep.
package guest
