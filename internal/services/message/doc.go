// Package message sends and receives encrypted application messages for a
// group. Sends consume a fresh key from the sender's ratchet chain; receives
// drain the group inbox populated during sync.
package message
