package initdata

import "encoding/json"

// User is the launching or receiving user of a Mini App session.
// ID may be negative for non-person chat actors.
type User struct {
	id                    int64
	isBot                 *bool
	firstName             string
	lastName              *string
	username              *string
	languageCode          *string
	isPremium             bool
	addedToAttachmentMenu bool
	allowsWriteToPM       bool
	photoURL              *string
}

// userJSON is the wire shape. Pointer fields tell "absent" apart from a zero value;
// the three flags default to false when absent.
type userJSON struct {
	ID                    *int64  `json:"id" validate:"required"`
	IsBot                 *bool   `json:"is_bot,omitempty"`
	FirstName             *string `json:"first_name" validate:"required"`
	LastName              *string `json:"last_name,omitempty"`
	Username              *string `json:"username,omitempty"`
	LanguageCode          *string `json:"language_code,omitempty"`
	IsPremium             bool    `json:"is_premium"`
	AddedToAttachmentMenu bool    `json:"added_to_attachment_menu"`
	AllowsWriteToPM       bool    `json:"allows_write_to_pm"`
	PhotoURL              *string `json:"photo_url,omitempty"`
}

func (u *User) ID() int64 { return u.id }

// IsBot reports the is_bot flag. ok is false when the platform did not state it.
func (u *User) IsBot() (isBot bool, ok bool) {
	if u.isBot == nil {
		return false, false
	}
	return *u.isBot, true
}

func (u *User) FirstName() string { return u.firstName }

func (u *User) LastName() (string, bool) { return optional(u.lastName) }

func (u *User) Username() (string, bool) { return optional(u.username) }

func (u *User) LanguageCode() (string, bool) { return optional(u.languageCode) }

func (u *User) PhotoURL() (string, bool) { return optional(u.photoURL) }

func (u *User) IsPremium() bool { return u.isPremium }

func (u *User) AddedToAttachmentMenu() bool { return u.addedToAttachmentMenu }

func (u *User) AllowsWriteToPM() bool { return u.allowsWriteToPM }

func (u *User) MarshalJSON() ([]byte, error) {
	id := u.id
	firstName := u.firstName
	return json.Marshal(userJSON{
		ID:                    &id,
		IsBot:                 u.isBot,
		FirstName:             &firstName,
		LastName:              u.lastName,
		Username:              u.username,
		LanguageCode:          u.languageCode,
		IsPremium:             u.isPremium,
		AddedToAttachmentMenu: u.addedToAttachmentMenu,
		AllowsWriteToPM:       u.allowsWriteToPM,
		PhotoURL:              u.photoURL,
	})
}

func (w userJSON) user() *User {
	return &User{
		id:                    *w.ID,
		isBot:                 w.IsBot,
		firstName:             *w.FirstName,
		lastName:              w.LastName,
		username:              w.Username,
		languageCode:          w.LanguageCode,
		isPremium:             w.IsPremium,
		addedToAttachmentMenu: w.AddedToAttachmentMenu,
		allowsWriteToPM:       w.AllowsWriteToPM,
		photoURL:              w.PhotoURL,
	}
}

// Chat is the chat a Mini App was opened from (attachment menu launches).
type Chat struct {
	id       int64
	typ      string
	title    string
	username *string
	photoURL *string
}

type chatJSON struct {
	ID       *int64  `json:"id" validate:"required"`
	Type     *string `json:"type" validate:"required"`
	Title    *string `json:"title" validate:"required"`
	Username *string `json:"username,omitempty"`
	PhotoURL *string `json:"photo_url,omitempty"`
}

func (c *Chat) ID() int64 { return c.id }

// Type is one of "group", "supergroup" or "channel".
func (c *Chat) Type() string { return c.typ }

func (c *Chat) Title() string { return c.title }

func (c *Chat) Username() (string, bool) { return optional(c.username) }

func (c *Chat) PhotoURL() (string, bool) { return optional(c.photoURL) }

func (c *Chat) MarshalJSON() ([]byte, error) {
	id, typ, title := c.id, c.typ, c.title
	return json.Marshal(chatJSON{
		ID:       &id,
		Type:     &typ,
		Title:    &title,
		Username: c.username,
		PhotoURL: c.photoURL,
	})
}

func (w chatJSON) chat() *Chat {
	return &Chat{
		id:       *w.ID,
		typ:      *w.Type,
		title:    *w.Title,
		username: w.Username,
		photoURL: w.PhotoURL,
	}
}

func optional(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}
