package db

import (
	"context"
	"fmt"
	"time"

	"voice-dashboard/pkg/domain"
)

// ProfilesTable holds one row per auth user.
const ProfilesTable = "profiles"

// SupabaseProfileStore keeps profiles through the Supabase REST API.
type SupabaseProfileStore struct {
	rest  RestQuerier
	table string
	now   func() time.Time
}

func NewSupabaseProfileStore(rest RestQuerier) *SupabaseProfileStore {
	return &SupabaseProfileStore{rest: rest, table: ProfilesTable, now: time.Now}
}

func (s *SupabaseProfileStore) Get(ctx context.Context, id string) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	var rows []domain.Profile
	_, err := s.rest.From(s.table).
		Select("*", "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Profile{}, restError("get profile", err)
	}
	if len(rows) == 0 {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	return rows[0], nil
}

func (s *SupabaseProfileStore) Insert(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}

	var rows []domain.Profile
	_, err := s.rest.From(s.table).
		Insert(profileRow(p), false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return domain.Profile{}, restError("insert profile", err)
	}
	if len(rows) == 0 {
		return domain.Profile{}, &domain.BackendError{Message: "insert profile: no row returned"}
	}
	return rows[0], nil
}

func (s *SupabaseProfileStore) Update(ctx context.Context, id string, fields map[string]any) (domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return domain.Profile{}, err
	}
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["updated_at"] = s.now().UTC()

	var rows []domain.Profile
	_, err := s.rest.From(s.table).
		Update(body, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return domain.Profile{}, restError("update profile", err)
	}
	if len(rows) == 0 {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	return rows[0], nil
}

func (s *SupabaseProfileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var rows []domain.Profile
	_, err := s.rest.From(s.table).
		Delete("representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return restError("delete profile", err)
	}
	// Row-level security hides rows the caller may not delete, so an empty
	// result covers both a missing and a foreign profile.
	if len(rows) == 0 {
		return fmt.Errorf("profile %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func profileRow(p domain.Profile) map[string]any {
	row := map[string]any{
		"id":                  p.ID,
		"email_notifications": p.EmailNotifications,
		"sms_notifications":   p.SMSNotifications,
		"marketing_emails":    p.MarketingEmails,
		"two_factor_enabled":  p.TwoFactorEnabled,
		"login_alerts":        p.LoginAlerts,
	}
	optional := map[string]string{
		"email":      p.Email,
		"full_name":  p.FullName,
		"avatar_url": p.AvatarURL,
		"phone":      p.Phone,
		"company":    p.Company,
		"job_title":  p.JobTitle,
		"bio":        p.Bio,
		"timezone":   p.Timezone,
		"language":   p.Language,
		"role":       p.Role,
	}
	for k, v := range optional {
		if v != "" {
			row[k] = v
		}
	}
	return row
}
