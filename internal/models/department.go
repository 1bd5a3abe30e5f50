package models

import "time"

// Department represents an academic unit that submits extension proposals.
type Department struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PartnerCommunity is the barangay or organisation an activity serves.
type PartnerCommunity struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BannerProgram is the flagship extension program a proposal files under.
type BannerProgram struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
