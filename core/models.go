package core

import "time"

// Credential names in the store. They match the cookie names the portal has
// always used so existing sessions keep working.
const (
	CredentialAccess   = "token"
	CredentialRefresh  = "refreshToken"
	CredentialIdentity = "telegramId"
)

// Session is a read-only snapshot of the current session.
//
// Authenticated is derived from the presence of Credential and never stored.
type Session struct {
	Credential    string `json:"-"`
	Authenticated bool   `json:"authenticated"`
}

// TelegramAssertion is the signed identity payload produced by the Telegram
// login widget. The backend verifies the hash; this module only forwards it.
type TelegramAssertion struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Username   string `json:"username,omitempty"`
	PhotoURL   string `json:"photo_url,omitempty"`
	AuthDate   string `json:"auth_date"`
	Hash       string `json:"hash"`
	ReferralID string `json:"referralId,omitempty"`
}

// User is the account as reported by the backend
type User struct {
	ID         string     `json:"id"`
	TelegramID string     `json:"telegramId"`
	Username   string     `json:"username,omitempty"`
	FirstName  string     `json:"firstName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	PhotoURL   string     `json:"photoUrl,omitempty"`
	Balance    *float64   `json:"balance,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	IsNewUser  bool       `json:"isNewUser,omitempty"`
}

// AuthResponse is returned by both the login and the refresh exchange.
// Older backends only fill Token; newer ones fill AccessToken.
type AuthResponse struct {
	Token        string `json:"token,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Credential returns the access credential, preferring AccessToken.
func (r *AuthResponse) Credential() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

type Subscription struct {
	ID            string     `json:"id,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	Status        string     `json:"status"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	DaysRemaining int        `json:"daysRemaining,omitempty"`
	IsExpired     bool       `json:"isExpired,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// PaymentStatus values; completed and failed are terminal.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// Payment is a backend-owned payment record. This module only reads it.
type Payment struct {
	ID        string        `json:"id"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Status    PaymentStatus `json:"status"`
	Plan      PlanID        `json:"plan"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type Server struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Location     string `json:"location,omitempty"`
	Country      string `json:"country,omitempty"`
	Load         *int   `json:"load,omitempty"`
	MaxUsers     *int   `json:"maxUsers,omitempty"`
	CurrentUsers *int   `json:"currentUsers,omitempty"`
	IsActive     bool   `json:"isActive"`
}

// ServerConfig is the per-server connection artifact.
type ServerConfig struct {
	ID             string `json:"id"`
	ServerID       string `json:"serverId"`
	ServerName     string `json:"serverName,omitempty"`
	ServerLocation string `json:"serverLocation,omitempty"`
	ServerCountry  string `json:"serverCountry,omitempty"`
	VlessConfig    string `json:"vlessConfig"`
	QRCode         string `json:"qrCode,omitempty"`
	IsActive       bool   `json:"isActive"`
}

// Overview is what the dashboard needs in one round.
type Overview struct {
	User         *User         `json:"user"`
	Subscription *Subscription `json:"subscription"`
}

// CreatePaymentRequest is the body of POST /billing/create.
type CreatePaymentRequest struct {
	Plan      PlanID `json:"plan"`
	Devices   int    `json:"devices"`
	PromoCode string `json:"promoCode,omitempty"`
}

type CreatePaymentResponse struct {
	PaymentID  string `json:"paymentId"`
	PaymentURL string `json:"paymentUrl"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// PromoResponse is the reply of POST /promo/apply.
type PromoResponse struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discountType"`
	DiscountValue float64      `json:"discountValue"`
	Valid         bool         `json:"valid"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	TelegramID   string `json:"telegramId"`
}
