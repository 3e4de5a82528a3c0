package conversation

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_CapacityInvariant checks that no sequence of TouchOrCreate
// calls ever grows the index past its capacity.
func TestProperty_CapacityInvariant(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("session index never exceeds capacity", prop.ForAll(
		func(ids []string) bool {
			s := NewStore(Config{
				MaxConversations:           5,
				MaxMessagesPerConversation: 10,
				TTL:                        time.Hour,
			}, nil)
			for _, id := range ids {
				s.TouchOrCreate(id)
				if s.Len() > 5 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// TestProperty_PerSessionCap checks that any append sequence leaves at most
// the cap, and that the retained messages are the most recent in order.
func TestProperty_PerSessionCap(t *testing.T) {
	properties := gopter.NewProperties(nil)

	const maxMsgs = 6

	properties.Property("retained messages are the newest, in order", prop.ForAll(
		func(contents []string) bool {
			s := NewStore(Config{
				MaxConversations:           5,
				MaxMessagesPerConversation: maxMsgs,
				TTL:                        time.Hour,
			}, nil)

			var all []string
			for _, c := range contents {
				s.Append("s", Message{Role: RoleUser, Content: "q:" + c}, Message{Role: RoleAssistant, Content: "a:" + c})
				all = append(all, "q:"+c, "a:"+c)
			}

			got := s.History("s", 1000)
			if len(got) > maxMsgs {
				return false
			}
			want := all
			if len(want) > maxMsgs {
				want = want[len(want)-maxMsgs:]
			}
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i].Content != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
