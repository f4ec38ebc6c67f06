package domain

import "time"

// RoleAdmin may manage recordings owned by other users.
const RoleAdmin = "admin"

// Identity is the signed-in user the core acts on behalf of.
type Identity struct {
	ID    string
	Email string
	Role  string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Profile is the per-user settings row kept next to the auth user.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Language  string `json:"language,omitempty"`
	Role      string `json:"role,omitempty"`

	EmailNotifications bool `json:"email_notifications"`
	SMSNotifications   bool `json:"sms_notifications"`
	MarketingEmails    bool `json:"marketing_emails"`
	TwoFactorEnabled   bool `json:"two_factor_enabled"`
	LoginAlerts        bool `json:"login_alerts"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewProfile returns a profile for id with the default notification settings.
func NewProfile(id, email string) Profile {
	return Profile{
		ID:                 id,
		Email:              email,
		EmailNotifications: true,
		SMSNotifications:   false,
		MarketingEmails:    true,
		TwoFactorEnabled:   false,
		LoginAlerts:        true,
	}
}
