// Package domain defines the persistence models for conversation sessions,
// messages, leads, quick responses, tenant chat configuration, and vehicle
// embeddings. These types are mapped with GORM and form the core data layer
// of the conversational commerce application.
package domain

import (
	"time"
)

// Channel identifiers. The set is closed: adding a channel means adding an
// adapter implementation, not a new string at a call site.
const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
)

// Session statuses.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionExpired   = "expired"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Lead statuses.
const (
	LeadNew        = "new"
	LeadInProgress = "in_progress"
	LeadConverted  = "converted"
	LeadLost       = "lost"
)

// Session represents one continuous conversation for one customer on one
// channel. At most one active session may exist per (channel, channel_user_id)
// pair; this is enforced with a partial-unique trick: ActiveKey mirrors
// ChannelUserID while the session is active and is NULL otherwise, so the
// unique index on (channel, active_key) only ever collides for active rows.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Token: opaque session token returned to REST callers.
//   - Channel: "web" or "whatsapp".
//   - ChannelUserID: phone number or anonymous widget id.
//   - ActiveKey: ChannelUserID while Status == active, else NULL.
//   - UserID: authenticated platform user, nil until identified.
//   - Status: active | completed | expired.
//   - BotActive: false while a human agent owns the conversation.
//   - ConfigID: tenant chatbot configuration bound at creation.
//   - Language: BCP-47 tag of the conversation language.
//   - LastActivityAt: drives the inactivity expiry sweep.
type Session struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	Token          string    `json:"token"           gorm:"type:char(36);not null;uniqueIndex:ux_session_token"`
	Channel        string    `json:"channel"         gorm:"type:varchar(16);not null;uniqueIndex:ux_active_session,priority:1;check:channel IN ('web','whatsapp')"`
	ChannelUserID  string    `json:"channel_user_id" gorm:"type:varchar(64);not null;index:idx_channel_user"`
	ActiveKey      *string   `json:"-"               gorm:"type:varchar(64);uniqueIndex:ux_active_session,priority:2"`
	ProfileName    string    `json:"profile_name"    gorm:"type:varchar(128)"`
	UserID         *string   `json:"user_id,omitempty" gorm:"type:char(36);index"`
	Status         string    `json:"status"          gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','completed','expired')"`
	BotActive      bool      `json:"bot_active"      gorm:"not null"`
	ConfigID       string    `json:"config_id"       gorm:"type:char(36);not null;index"`
	Language       string    `json:"language"        gorm:"type:varchar(16);not null;default:'es'"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at" gorm:"index"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Message represents a single turn within a session, immutable once written.
// ChannelMessageID carries the provider message id and is unique when
// non-empty, which makes webhook redelivery idempotent at the storage layer.
type Message struct {
	ID               string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID        string    `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Direction        string    `json:"direction"  gorm:"type:varchar(8);not null;check:direction IN ('in','out')"`
	Content          string    `json:"content"    gorm:"type:text;not null"`
	MediaURL         string    `json:"media_url,omitempty" gorm:"type:varchar(512)"`
	Intent           *string   `json:"intent,omitempty"    gorm:"type:varchar(64)"`
	Billable         bool      `json:"billable"   gorm:"not null;default:false"`
	ChannelMessageID *string   `json:"channel_message_id,omitempty" gorm:"type:varchar(128);uniqueIndex:ux_channel_msg"`
	CreatedAt        time.Time `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`

	// Session is the parent conversation. Messages are cascade-deleted
	// if their session is removed.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Lead summarizes a customer's purchase intent, one-to-one optional with a
// session. Leads are created once the qualification score crosses the
// configured threshold and are never deleted, only status-transitioned.
type Lead struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID  string    `json:"session_id" gorm:"type:char(36);not null;uniqueIndex:ux_lead_session"`
	Name       string    `json:"name"       gorm:"type:varchar(128)"`
	Phone      string    `json:"phone"      gorm:"type:varchar(32);index"`
	Email      string    `json:"email"      gorm:"type:varchar(128)"`
	VehicleID  *string   `json:"vehicle_id,omitempty" gorm:"type:varchar(64)"`
	BudgetMin  *float64  `json:"budget_min,omitempty"`
	BudgetMax  *float64  `json:"budget_max,omitempty"`
	Status     string    `json:"status"     gorm:"type:varchar(16);not null;default:'new';check:status IN ('new','in_progress','converted','lost')"`
	Score      int       `json:"score"      gorm:"not null;default:0;index"`
	AssignedTo *string   `json:"assigned_to,omitempty" gorm:"type:char(36)"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Lead.
func (Lead) TableName() string { return "leads" }

// VehicleEmbedding stores one normalized text representation, embedding
// vector, and structured metadata snapshot per (dealer, vehicle). Rows are
// written by the inventory sync and read-only from the pipeline side.
//
// Vector holds the embedding serialized as little-endian float32, see
// vectorstore.EncodeVector.
type VehicleEmbedding struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	DealerID     string    `json:"dealer_id"  gorm:"type:char(36);not null;uniqueIndex:ux_dealer_vehicle,priority:1"`
	VehicleID    string    `json:"vehicle_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_dealer_vehicle,priority:2"`
	Content      string    `json:"content"    gorm:"type:text;not null"`
	Vector       []byte    `json:"-"          gorm:"type:blob;not null"`
	Make         string    `json:"make"       gorm:"type:varchar(64);index"`
	Model        string    `json:"model"      gorm:"type:varchar(64);index"`
	Year         int       `json:"year"       gorm:"index"`
	Price        float64   `json:"price"      gorm:"index"`
	FuelType     string    `json:"fuel_type"  gorm:"type:varchar(32)"`
	Transmission string    `json:"transmission" gorm:"type:varchar(32)"`
	BodyType     string    `json:"body_type"  gorm:"type:varchar(32)"`
	Mileage      int       `json:"mileage"`
	// No column default: an insert must be able to store false (sold units),
	// and gorm skips zero values for defaulted columns.
	Available    bool      `json:"available"  gorm:"not null;index"`
	Featured     bool      `json:"featured"   gorm:"not null;default:false"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for VehicleEmbedding.
func (VehicleEmbedding) TableName() string { return "vehicle_embeddings" }

// QuickResponse is a tenant-configured trigger → canned-reply rule evaluated
// before the assistant stage. Triggers holds the phrases joined by '|'.
type QuickResponse struct {
	ID         string     `json:"id"        gorm:"type:char(36);primaryKey"`
	ConfigID   string     `json:"config_id" gorm:"type:char(36);not null;index:idx_qr_config"`
	Triggers   string     `json:"triggers"  gorm:"type:text;not null"`
	Reply      string     `json:"reply"     gorm:"type:text;not null"`
	Priority   int        `json:"priority"  gorm:"not null;default:0"`
	Active     bool       `json:"active"    gorm:"not null"`
	UseCount   int64      `json:"use_count" gorm:"not null;default:0"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName returns the database table name for QuickResponse.
func (QuickResponse) TableName() string { return "quick_responses" }

// TriggerList splits the stored trigger phrases.
func (q QuickResponse) TriggerList() []string {
	if q.Triggers == "" {
		return nil
	}
	parts := make([]string, 0, 4)
	start := 0
	for i := 0; i <= len(q.Triggers); i++ {
		if i == len(q.Triggers) || q.Triggers[i] == '|' {
			if p := trimSpaces(q.Triggers[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	return parts
}

func trimSpaces(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}

// ChatConfig is the per-tenant chatbot configuration bound to a session at
// creation. A single row with DealerID == "" acts as the global default.
// The pipeline treats these rows as read-only.
type ChatConfig struct {
	ID                    string    `json:"id"        gorm:"type:char(36);primaryKey"`
	DealerID              string    `json:"dealer_id" gorm:"type:char(36);index:idx_config_dealer"`
	BotName               string    `json:"bot_name"  gorm:"type:varchar(64);not null;default:'Asistente'"`
	WelcomeMessage        string    `json:"welcome_message" gorm:"type:text"`
	Language              string    `json:"language"  gorm:"type:varchar(16);not null;default:'es'"`
	WebEnabled            bool      `json:"web_enabled"      gorm:"not null"`
	WhatsAppEnabled       bool      `json:"whatsapp_enabled" gorm:"not null"`
	RateLimitPerMinute    int       `json:"rate_limit_per_minute" gorm:"not null;default:20"`
	AllowedCountries      string    `json:"allowed_countries" gorm:"type:varchar(256)"` // CSV of ISO codes, empty = inherit global
	SessionTimeoutMinutes int       `json:"session_timeout_minutes" gorm:"not null;default:30"`
	MaxHistoryMessages    int       `json:"max_history_messages"    gorm:"not null;default:10"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// TableName returns the database table name for ChatConfig.
func (ChatConfig) TableName() string { return "chat_configs" }

// AllowedCountryList splits the CSV allow-list. Empty means inherit the
// deployment-wide list.
func (c ChatConfig) AllowedCountryList() []string {
	if c.AllowedCountries == "" {
		return nil
	}
	parts := make([]string, 0, 4)
	start := 0
	for i := 0; i <= len(c.AllowedCountries); i++ {
		if i == len(c.AllowedCountries) || c.AllowedCountries[i] == ',' {
			if p := trimSpaces(c.AllowedCountries[start:i]); p != "" {
				parts = append(parts, p)
			}
			start = i + 1
		}
	}
	return parts
}
