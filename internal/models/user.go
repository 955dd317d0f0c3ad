package models

import "time"

// User is a wallet address that has proven control of its key at least once
type User struct {
	Address        string    `bson:"address" json:"address"`
	LastVerifiedAt time.Time `bson:"lastVerifiedAt" json:"last_verified_at"`
	CreatedAt      time.Time `bson:"createdAt" json:"created_at"`
}
