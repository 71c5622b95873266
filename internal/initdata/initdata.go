// Package initdata validates and decodes the signed init data a Telegram
// Mini App receives from the client.
//
// Validation is linear: decode the urlencoded payload, pull out the claimed
// hash, build the data-check string, compare signatures, then decode the
// typed fields. Any failure rejects the whole payload. The package keeps no
// state between calls; the secret is derived from the caller's token on every
// call and never leaves it.
//
// The payload is decoded with net/url. A raw ';' or an invalid percent escape
// is rejected as ErrMalformedPayload before the hash is looked at, so such
// payloads never reach MissingField("hash") or ErrInvalidHash.
package initdata

import (
	"encoding/json"
	"math"
	"time"
)

// Clock supplies the current time for elapsed-time queries.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type options struct {
	clock Clock
}

type Option func(*options)

// WithClock overrides the clock used by InitData.ElapsedSinceAuth.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// InitData is a validated payload. It is immutable.
type InitData struct {
	user         *User
	receiver     *User
	chat         *Chat
	authDate     uint64
	canSendAfter *uint64
	queryID      *string
	chatType     *string
	chatInstance *string
	startParam   *string

	clock Clock
}

// Validate checks the signature of raw against token and decodes it.
// The typed fields are only decoded after the signature matched.
func Validate(token string, raw []byte, opts ...Option) (*InitData, error) {
	o := options{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	pairs, err := decodePairs(raw)
	if err != nil {
		return nil, err
	}

	hash, err := splitHash(pairs)
	if err != nil {
		return nil, err
	}

	if err := verifyHash(token, DataCheckString(pairs), hash); err != nil {
		return nil, err
	}

	d, err := decodeFields(pairs)
	if err != nil {
		return nil, err
	}
	d.clock = o.clock
	return d, nil
}

// Parse is Validate for string payloads.
func Parse(token, raw string, opts ...Option) (*InitData, error) {
	return Validate(token, []byte(raw), opts...)
}

// User returns the launching user, if the payload carried one.
func (d *InitData) User() (*User, bool) {
	return d.user, d.user != nil
}

// Receiver returns the chat partner in user-to-user launches.
func (d *InitData) Receiver() (*User, bool) {
	return d.receiver, d.receiver != nil
}

func (d *InitData) Chat() (*Chat, bool) {
	return d.chat, d.chat != nil
}

// AuthDate is the claimed authentication time in Unix seconds.
func (d *InitData) AuthDate() uint64 {
	return d.authDate
}

func (d *InitData) QueryID() (string, bool) { return optional(d.queryID) }

func (d *InitData) ChatType() (string, bool) { return optional(d.chatType) }

func (d *InitData) ChatInstance() (string, bool) { return optional(d.chatInstance) }

func (d *InitData) StartParam() (string, bool) { return optional(d.startParam) }

// CanSendAfter is the delay before answerWebAppQuery may be called.
func (d *InitData) CanSendAfter() (time.Duration, bool) {
	if d.canSendAfter == nil {
		return 0, false
	}
	return secondsToDuration(*d.canSendAfter)
}

// ElapsedSinceAuth reads the clock and returns the whole seconds passed since
// auth_date. ok is false when the clock is before the Unix epoch, when
// auth_date lies in the future, or when the result overflows time.Duration.
func (d *InitData) ElapsedSinceAuth() (time.Duration, bool) {
	clock := d.clock
	if clock == nil {
		clock = SystemClock{}
	}

	now := clock.Now().Unix()
	if now < 0 {
		return 0, false
	}
	if uint64(now) < d.authDate {
		return 0, false
	}
	return secondsToDuration(uint64(now) - d.authDate)
}

func secondsToDuration(secs uint64) (time.Duration, bool) {
	if secs > uint64(math.MaxInt64/int64(time.Second)) {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

type initDataJSON struct {
	QueryID      *string `json:"query_id,omitempty"`
	User         *User   `json:"user,omitempty"`
	Receiver     *User   `json:"receiver,omitempty"`
	Chat         *Chat   `json:"chat,omitempty"`
	ChatType     *string `json:"chat_type,omitempty"`
	ChatInstance *string `json:"chat_instance,omitempty"`
	StartParam   *string `json:"start_param,omitempty"`
	CanSendAfter *uint64 `json:"can_send_after,omitempty"`
	AuthDate     uint64  `json:"auth_date"`
}

// MarshalJSON renders the decoded fields in their wire names. The hash is not
// part of InitData and is never rendered.
func (d *InitData) MarshalJSON() ([]byte, error) {
	return json.Marshal(initDataJSON{
		QueryID:      d.queryID,
		User:         d.user,
		Receiver:     d.receiver,
		Chat:         d.chat,
		ChatType:     d.chatType,
		ChatInstance: d.chatInstance,
		StartParam:   d.startParam,
		CanSendAfter: d.canSendAfter,
		AuthDate:     d.authDate,
	})
}
