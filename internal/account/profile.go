package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"careercoach/internal/models"
	"careercoach/internal/storage"
)

const (
	maxExperienceYears = 50
	maxBioRunes        = 500
	maxSkills          = 30
)

// ErrInvalidProfile wraps every profile validation failure.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile returns the user's career profile, or nil when onboarding has not
// been completed.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	var (
		p      models.Profile
		skills string
	)
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT industry, sub_industry, experience, skills, bio, updated_at FROM user_profiles WHERE user_id = ?`),
		userID,
	).Scan(&p.Industry, &p.SubIndustry, &p.Experience, &skills, &p.Bio, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	return &p, nil
}

// UpdateProfile validates and stores the user's career profile, replacing any
// previous one.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in models.Profile) (*models.Profile, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	p, err := normalizeProfile(in)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	skills, err := json.Marshal(p.Skills)
	if err != nil {
		return nil, fmt.Errorf("encode skills: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	var query string
	switch s.db.Driver {
	case storage.DriverMySQL:
		query = `INSERT INTO user_profiles (user_id, industry, sub_industry, experience, skills, bio, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE industry = VALUES(industry), sub_industry = VALUES(sub_industry),
				experience = VALUES(experience), skills = VALUES(skills), bio = VALUES(bio), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO user_profiles (user_id, industry, sub_industry, experience, skills, bio, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET industry = excluded.industry, sub_industry = excluded.sub_industry,
				experience = excluded.experience, skills = excluded.skills, bio = excluded.bio, updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		userID, p.Industry, p.SubIndustry, p.Experience, string(skills), p.Bio, p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("store profile: %w", err)
	}
	return &p, nil
}

func normalizeProfile(in models.Profile) (models.Profile, error) {
	p := models.Profile{
		Industry:    strings.TrimSpace(in.Industry),
		SubIndustry: strings.TrimSpace(in.SubIndustry),
		Experience:  in.Experience,
		Bio:         strings.TrimSpace(in.Bio),
		Skills:      []string{},
	}
	seen := make(map[string]bool)
	for _, skill := range in.Skills {
		skill = strings.TrimSpace(skill)
		key := strings.ToLower(skill)
		if skill == "" || seen[key] {
			continue
		}
		seen[key] = true
		p.Skills = append(p.Skills, skill)
	}

	switch {
	case p.Industry == "":
		return p, fmt.Errorf("%w: industry is required", ErrInvalidProfile)
	case p.SubIndustry == "":
		return p, fmt.Errorf("%w: specialization is required", ErrInvalidProfile)
	case p.Experience < 0 || p.Experience > maxExperienceYears:
		return p, fmt.Errorf("%w: experience must be between 0 and %d years", ErrInvalidProfile, maxExperienceYears)
	case len(p.Skills) == 0:
		return p, fmt.Errorf("%w: at least one skill is required", ErrInvalidProfile)
	case len(p.Skills) > maxSkills:
		return p, fmt.Errorf("%w: at most %d skills", ErrInvalidProfile, maxSkills)
	case utf8.RuneCountInString(p.Bio) > maxBioRunes:
		return p, fmt.Errorf("%w: bio cannot exceed %d characters", ErrInvalidProfile, maxBioRunes)
	}
	return p, nil
}
