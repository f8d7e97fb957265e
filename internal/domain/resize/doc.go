// Package resize reconciles an embedding element's layout box with its
// guest's viewport.
//
// Guest resizes are asynchronous relative to the triggering layout change.
// The negotiator stamps every request with a per-element sequence number so a
// slow apply can never overwrite a newer size.
package resize
