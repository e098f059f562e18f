package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a fresh 24 character hex object id. All store backends key
// their records with it.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether s is a 24 character hex object id.
func ValidID(s string) bool {
	return primitive.IsValidObjectID(s)
}
