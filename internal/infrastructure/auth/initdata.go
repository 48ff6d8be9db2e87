package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// DefaultInitDataMaxAge bounds how old auth_date may be.
const DefaultInitDataMaxAge = 24 * time.Hour

// InitDataUser is the "user" object inside Telegram WebApp init data.
type InitDataUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Language  string `json:"language_code,omitempty"`
}

// InitData is a validated init data payload.
type InitData struct {
	User     InitDataUser
	AuthDate time.Time
	QueryID  string
}

// TelegramID returns the user id as a domain value.
func (d InitData) TelegramID() shared.TelegramID {
	return shared.TelegramID(d.User.ID)
}

// InitDataValidator checks the WebApp HMAC signature with the bot token.
type InitDataValidator struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewInitDataValidator creates a validator. maxAge <= 0 uses DefaultInitDataMaxAge.
func NewInitDataValidator(botToken string, maxAge time.Duration) *InitDataValidator {
	if maxAge <= 0 {
		maxAge = DefaultInitDataMaxAge
	}
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return &InitDataValidator{secret: mac.Sum(nil), maxAge: maxAge, now: time.Now}
}

// Validate parses raw init data and verifies its hash and freshness.
func (v *InitDataValidator) Validate(raw string) (InitData, error) {
	const op = "ValidateInitData"

	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, shared.WrapError("auth", op, shared.ErrUnauthorized, "malformed init data", err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return InitData{}, shared.NewDomainError("auth", op, shared.ErrUnauthorized, "init data hash is missing")
	}

	want, err := hex.DecodeString(hash)
	if err != nil || !hmac.Equal(want, v.sign(values)) {
		return InitData{}, shared.NewDomainError("auth", op, shared.ErrUnauthorized, "init data signature mismatch")
	}

	sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return InitData{}, shared.NewDomainError("auth", op, shared.ErrUnauthorized, "init data auth_date is invalid")
	}
	authDate := time.Unix(sec, 0).UTC()
	if v.now().Sub(authDate) > v.maxAge {
		return InitData{}, shared.WrapError("auth", op, shared.ErrUnauthorized, "init data is too old", shared.ErrExpired)
	}

	var user InitDataUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID <= 0 {
		return InitData{}, shared.NewDomainError("auth", op, shared.ErrUnauthorized, "init data user is invalid")
	}

	return InitData{User: user, AuthDate: authDate, QueryID: values.Get("query_id")}, nil
}

// Sign returns the hex hash Telegram would attach to values.
func (v *InitDataValidator) Sign(values url.Values) string {
	return hex.EncodeToString(v.sign(values))
}

// sign computes HMAC-SHA256 over the sorted "key=value" lines without hash.
func (v *InitDataValidator) sign(values url.Values) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + values.Get(k)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return mac.Sum(nil)
}
