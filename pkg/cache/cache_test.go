package cache

import (
	"testing"
	"time"
)

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "username",
			key:  Key{Kind: "user", Identifier: "SomeArtist"},
			want: "civitai:resolve:user:someartist",
		},
		{
			name: "whitespace trimmed",
			key:  Key{Kind: "user", Identifier: "  artist  "},
			want: "civitai:resolve:user:artist",
		},
		{
			name: "collection id",
			key:  Key{Kind: "collection", Identifier: "4242"},
			want: "civitai:resolve:collection:4242",
		},
		{
			name: "profile url",
			key:  Key{Kind: "user", Identifier: "https://civitai.com/user/Artist"},
			want: "civitai:resolve:user:https://civitai.com/user/artist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expired entry", time.Now().Add(-1 * time.Hour), true},
		{"valid entry", time.Now().Add(1 * time.Hour), false},
		{"just expired", time.Now().Add(-1 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	expired := &Entry{Expires: time.Now().Add(-1 * time.Hour)}
	if got := expired.TTL(); got != 0 {
		t.Errorf("TTL() = %v for expired entry, want 0", got)
	}

	fresh := &Entry{Expires: time.Now().Add(1 * time.Hour)}
	if got := fresh.TTL(); got < 59*time.Minute || got > 61*time.Minute {
		t.Errorf("TTL() = %v, want about an hour", got)
	}
}

func TestNewEntry(t *testing.T) {
	entry := NewEntry([]byte(`{"id": 1}`))

	if string(entry.Data) != `{"id": 1}` {
		t.Errorf("Data = %s", entry.Data)
	}
	if entry.IsExpired() {
		t.Error("Fresh entry should not be expired")
	}
	if ttl := entry.TTL(); ttl < DefaultTTL-time.Minute || ttl > DefaultTTL {
		t.Errorf("TTL() = %v, want about %v", ttl, DefaultTTL)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}
