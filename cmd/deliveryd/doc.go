// Package main runs the in-memory HTTP delivery service used by meld during
// development and tests. It stores published key packages, assigns sequence
// numbers to group messages, and queues welcomes for new members until they
// fetch them.
//
// HTTP API
//
//	POST /keypackages/{user}
//	    Append the user's published key packages.
//
//	POST /keypackages/{user}/claim
//	    Remove and return one of {user}'s key packages. 404 when none remain.
//
//	POST /groups/{gid}/messages
//	    Append a message to the group's ordered log and return its sequence
//	    number. Sequence numbers start at 1.
//
//	GET /groups/{gid}/messages?after=N
//	    Return all messages with sequence number greater than N.
//
//	POST /welcomes/{user}
//	    Enqueue a welcome for {user}.
//
//	GET /welcomes/{user}
//	    Return all queued welcomes for {user}.
//
//	POST /welcomes/{user}/ack { "count": N }
//	    Drop the first N queued welcomes. If N exceeds the queue length, the
//	    queue is cleared.
//
// Behaviour
//
//   - All state is held in memory and lost on process exit.
//   - Responses are JSON. Non-2xx statuses carry a short error message.
//   - The default listen address is :8080, overridable via --listen or a
//     TOML config file with a "listen" key.
//
// The service is an untrusted middleman. It never sees plaintext or private
// keys; it stores ciphertext, public key packages, and sealed welcomes.
package main
