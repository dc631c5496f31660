package models

import "time"

// User is an account able to own interview sessions.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIToken describes a stored provider key without exposing it.
type APIToken struct {
	Provider  string    `json:"provider"`
	Masked    string    `json:"masked"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the career background a user fills in at onboarding. New
// interviews fall back to its industry and skills.
type Profile struct {
	Industry    string    `json:"industry"`
	SubIndustry string    `json:"sub_industry"`
	Experience  int       `json:"experience"`
	Skills      []string  `json:"skills"`
	Bio         string    `json:"bio"`
	UpdatedAt   time.Time `json:"updated_at"`
}
