// Package utils holds small helpers shared by the player, the store and the
// monitor API.
package utils

import (
	"github.com/google/uuid"
)

// NamespaceInputs derives stable ids for player inputs from their
// type and filename.
var NamespaceInputs = uuid.MustParse("6ba7b814-9dad-11d1-80b4-00c04fd430c8")

// GenerateUUID returns a random (v4) UUID string.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateUUIDv1 returns a time-ordered UUID string. Playback sessions use
// it so their ids sort by start time.
func GenerateUUIDv1() string {
	return uuid.Must(uuid.NewUUID()).String()
}

// IsValidUUID reports whether s parses as a UUID
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// InputUUID returns the same id every time for the same input.
func InputUUID(inputType, name string) string {
	return uuid.NewSHA1(NamespaceInputs, []byte(inputType+":"+name)).String()
}
