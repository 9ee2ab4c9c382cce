package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"11987654321", "5511987654321"},
		{"5511987654321", "5511987654321"},
		{"1132654321", "551132654321"},
		{"551132654321", "551132654321"},
		{"+55 (11) 98765-4321", "5511987654321"},
		{"123", "123"},
		{"14155550100123", "14155550100123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in, "55"), "input %q", tt.in)
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"11987654321", "5511987654321", "1132654321", "123", "12345678",
		"123456789", "5512345678", "55123456789", "447911123456", "14155550100",
		"999999999999999", "0011987654321",
	}
	for _, cc := range []string{"55", "1", "351"} {
		for _, in := range inputs {
			once := NormalizePhone(in, cc)
			assert.Equal(t, once, NormalizePhone(once, cc), "cc=%s input=%q", cc, in)
		}
	}
}

func TestValidPhone(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidPhone("12345678"))
	assert.True(t, ValidPhone("123456789012345"))
	assert.True(t, ValidPhone("+55 11 98765-4321"))
	assert.False(t, ValidPhone("1234567"))
	assert.False(t, ValidPhone("1234567890123456"))
	assert.False(t, ValidPhone("55119abc87654"))
	assert.False(t, ValidPhone(""))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AddressPhone, Classify("5511987654321@s.whatsapp.net"))
	assert.Equal(t, AddressPhone, Classify("5511987654321@c.us"))
	assert.Equal(t, AddressLabel, Classify("204935734554822@lid"))
	assert.Equal(t, AddressGroup, Classify("120363025246125486@g.us"))
	assert.Equal(t, AddressGroup, Classify("status@broadcast"))
	assert.Equal(t, AddressGroup, Classify("1234@broadcast"))
	assert.Equal(t, AddressGroup, Classify("1203630@newsletter"))
	assert.Equal(t, AddressUnknown, Classify(""))
	assert.True(t, IsGroupOrBroadcast("status@broadcast"))
	assert.False(t, IsGroupOrBroadcast("5511987654321@s.whatsapp.net"))
}

func TestToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5511987654321", Token("5511987654321@s.whatsapp.net"))
	assert.Equal(t, "5511987654321", Token("5511987654321:17@s.whatsapp.net"))
	assert.Equal(t, "204935734554822", Token("204935734554822@lid"))
	assert.Equal(t, "5511987654321", Token("5511987654321"))
}

func TestStripCountryCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "11987654321", StripCountryCode("5511987654321", "55"))
	assert.Equal(t, "11987654321", StripCountryCode("11987654321", "55"))
	assert.Equal(t, "11987654321", StripCountryCode("11987654321", ""))
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	r := NewResolver("55")

	tests := []struct {
		name    string
		remote  string
		alt     string
		want    Identity
		wantErr bool
	}{
		{
			name:   "plain phone",
			remote: "11987654321@s.whatsapp.net",
			want:   Identity{Phone: "5511987654321"},
		},
		{
			name:   "phone with label alternate",
			remote: "5511987654321@s.whatsapp.net",
			alt:    "204935734554822@lid",
			want:   Identity{Phone: "5511987654321", Label: "204935734554822"},
		},
		{
			name:   "label with phone alternate",
			remote: "204935734554822@lid",
			alt:    "5511987654321@s.whatsapp.net",
			want:   Identity{Phone: "5511987654321", Label: "204935734554822"},
		},
		{
			name:   "label only",
			remote: "204935734554822@lid",
			want:   Identity{Label: "204935734554822"},
		},
		{
			name:   "label with label alternate keeps no phone",
			remote: "204935734554822@lid",
			alt:    "999@lid",
			want:   Identity{Label: "204935734554822"},
		},
		{
			name:    "too short phone",
			remote:  "123@s.whatsapp.net",
			wantErr: true,
		},
		{
			name:   "invalid alternate phone keeps the label",
			remote: "204935734554822@lid",
			alt:    "12@s.whatsapp.net",
			want:   Identity{Label: "204935734554822"},
		},
		{
			name:    "label alternate does not rescue an invalid phone",
			remote:  "12@s.whatsapp.net",
			alt:     "204935734554822@lid",
			wantErr: true,
		},
		{
			name:    "group",
			remote:  "120363025246125486@g.us",
			wantErr: true,
		},
		{
			name:    "empty",
			remote:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := r.Resolve(tt.remote, tt.alt)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnaddressable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
