// Package keypackage generates and publishes the key packages other members
// claim to add us to groups.
package keypackage
