package models

import "time"

type Farm struct {
	ID           string
	OwnerID      string
	Name         string
	Location     string
	SizeHectares float64
	FarmType     string
	Description  *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
