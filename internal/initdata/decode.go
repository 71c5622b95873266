package initdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	fieldUser         = "user"
	fieldReceiver     = "receiver"
	fieldChat         = "chat"
	fieldAuthDate     = "auth_date"
	fieldCanSendAfter = "can_send_after"
	fieldQueryID      = "query_id"
	fieldChatType     = "chat_type"
	fieldChatInstance = "chat_instance"
	fieldStartParam   = "start_param"
)

// validate only checks that required sub-fields were present in the JSON.
// A *validator.Validate is safe for concurrent use and holds no secrets.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeFields turns the authenticated pairs into InitData. Fields are decoded
// in a fixed order and the first failure aborts: user, receiver, auth_date,
// chat, can_send_after.
func decodeFields(pairs map[string]string) (*InitData, error) {
	d := &InitData{}

	if raw, ok := pairs[fieldUser]; ok {
		u, err := decodeUser(raw)
		if err != nil {
			return nil, InvalidJSON(fieldUser, err)
		}
		d.user = u
	}

	if raw, ok := pairs[fieldReceiver]; ok {
		u, err := decodeUser(raw)
		if err != nil {
			return nil, InvalidJSON(fieldReceiver, err)
		}
		d.receiver = u
	}

	raw, ok := pairs[fieldAuthDate]
	if !ok {
		return nil, MissingField(fieldAuthDate)
	}
	authDate, err := parseUnsigned(raw)
	if err != nil {
		return nil, InvalidNumericField(fieldAuthDate)
	}
	d.authDate = authDate

	if raw, ok := pairs[fieldChat]; ok {
		c, err := decodeChat(raw)
		if err != nil {
			return nil, InvalidJSON(fieldChat, err)
		}
		d.chat = c
	}

	if raw, ok := pairs[fieldCanSendAfter]; ok {
		secs, err := parseUnsigned(raw)
		if err != nil {
			return nil, InvalidNumericField(fieldCanSendAfter)
		}
		d.canSendAfter = &secs
	}

	d.queryID = lookup(pairs, fieldQueryID)
	d.chatType = lookup(pairs, fieldChatType)
	d.chatInstance = lookup(pairs, fieldChatInstance)
	d.startParam = lookup(pairs, fieldStartParam)

	return d, nil
}

func decodeUser(raw string) (*User, error) {
	var w userJSON
	if err := decodeStrict(raw, &w); err != nil {
		return nil, err
	}
	return w.user(), nil
}

func decodeChat(raw string) (*Chat, error) {
	var w chatJSON
	if err := decodeStrict(raw, &w); err != nil {
		return nil, err
	}
	return w.chat(), nil
}

// decodeStrict unmarshals a JSON object and then checks required fields.
// Only keys that match a json tag exactly are decoded; encoding/json would
// otherwise accept "ID" for "id" and let a case variant overwrite the field.
func decodeStrict(raw string, dst any) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return err
	}

	known := jsonFieldNames(reflect.TypeOf(dst).Elem())
	for key := range obj {
		if _, ok := known[key]; !ok {
			delete(obj, key)
		}
	}

	exact, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(exact, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return requiredFieldError(err)
	}
	return nil
}

func jsonFieldNames(t reflect.Type) map[string]struct{} {
	names := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		if name != "" && name != "-" {
			names[name] = struct{}{}
		}
	}
	return names
}

func requiredFieldError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("missing field %q", verrs[0].Field())
	}
	return err
}

// parseUnsigned parses a base-10 unsigned integer. One leading '+' is allowed.
func parseUnsigned(s string) (uint64, error) {
	if len(s) > 1 && s[0] == '+' {
		s = s[1:]
	}
	return strconv.ParseUint(s, 10, 64)
}

func lookup(pairs map[string]string, key string) *string {
	v, ok := pairs[key]
	if !ok {
		return nil
	}
	return &v
}
