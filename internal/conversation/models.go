package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

const DefaultTitle = "New conversation"

// Reply is the assistant side of a Message. Older documents stored a single string, newer
// ones a list of short strings; both decode, and the stored form is kept so a reply
// written as a string reads back as a string.
type Reply struct {
	items  []string
	single bool
}

func SingleReply(text string) Reply {
	return Reply{items: []string{text}, single: true}
}

func ListReply(items ...string) Reply {
	return Reply{items: append([]string{}, items...)}
}

// Items is the normalized list view.
func (r Reply) Items() []string {
	if r.items == nil {
		return []string{}
	}
	return append([]string{}, r.items...)
}

func (r Reply) IsSingle() bool { return r.single }

// IsZero reports whether the reply carries no text at all.
func (r Reply) IsZero() bool {
	for _, s := range r.items {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

func (r Reply) MarshalJSON() ([]byte, error) {
	if r.single {
		return json.Marshal(r.items[0])
	}
	return json.Marshal(r.Items())
}

func (r *Reply) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*r = Reply{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = SingleReply(s)
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("reply: %w", err)
		}
		*r = ListReply(items...)
		return nil
	}
	return errors.New("reply: expected string or array of strings")
}

func (r Reply) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if r.single {
		return bson.MarshalValue(r.items[0])
	}
	return bson.MarshalValue(r.Items())
}

func (r *Reply) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*r = SingleReply(raw.StringValue())
		return nil
	case bsontype.Array:
		var items []string
		if err := raw.Unmarshal(&items); err != nil {
			return fmt.Errorf("reply: %w", err)
		}
		*r = ListReply(items...)
		return nil
	case bsontype.Null, bsontype.Undefined:
		*r = Reply{}
		return nil
	}
	return fmt.Errorf("reply: unexpected bson type %s", t)
}

type Message struct {
	User      string
	AI        Reply
	CreatedAt time.Time
}

// Insight is the single "aha moment" note attached to a conversation.
type Insight struct {
	Text      string
	CreatedAt time.Time
}

type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	Messages  []Message
	Insight   *Insight
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LegacyMessage lives in the flat "messages" collection and is not linked to any conversation.
type LegacyMessage struct {
	ID        string
	User      string
	AI        Reply
	CreatedAt time.Time
}
