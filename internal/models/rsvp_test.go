package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"regular", "ana@example.com", "an***@example.com"},
		{"long local part", "pedro.sereno@sereno.dev.br", "pe***@sereno.dev.br"},
		{"two char local", "ab@x.io", "ab***@x.io"},
		{"one char local", "a@x.io", "a***@x.io"},
		{"several at signs", "we@ird@host.com", "we***@host.com"},
		{"no at sign", "notanemail", "no***"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.in))
		})
	}
}

func TestCleanPlusOnes(t *testing.T) {
	in := []PlusOne{
		{Name: "  Bia ", Email: " BIA@Example.COM "},
		{Name: "   ", Email: "ghost@example.com"},
		{Name: "Caio", Email: ""},
		{Name: "Duda", Email: "duda@example.com"},
		{Name: "Edu", Email: "edu@example.com"},
	}

	got := CleanPlusOnes(in)

	require.Len(t, got, MaxPlusOnes)
	assert.Equal(t, PlusOne{Name: "Bia", Email: "bia@example.com"}, got[0])
	assert.Equal(t, PlusOne{Name: "Caio", Email: ""}, got[1])
	assert.Equal(t, "Duda", got[2].Name)
}

func TestCleanPlusOnes_Nil(t *testing.T) {
	got := CleanPlusOnes(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusCancelled.Valid())
	assert.False(t, Status("maybe").Valid())
	assert.False(t, Status("").Valid())
}

func TestNormalize_LegacyRecord(t *testing.T) {
	raw := `{"id":"abc","name":"Ana","email":"ana@example.com","message":"oi","status":"confirmed","createdAt":"2025-12-01T10:00:00.000Z","updatedAt":"2025-12-01T10:00:00.000Z"}`

	var r Rsvp
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	r.Normalize()

	assert.Equal(t, "", r.FoodRestrictions)
	assert.NotNil(t, r.PlusOnes)
	assert.Empty(t, r.PlusOnes)
	assert.NotNil(t, r.Trophies)
	assert.Equal(t, StatusConfirmed, r.Status)
	assert.Equal(t, 2025, r.CreatedAt.Year())
}

func TestPublic_MasksEveryEmail(t *testing.T) {
	r := &Rsvp{
		ID:       "x7k2m9pq3a",
		Name:     "Ana",
		Email:    "ana@example.com",
		PlusOnes: []PlusOne{{Name: "Bia", Email: "bia@example.com"}, {Name: "Caio"}},
		Status:   StatusConfirmed,
	}

	pub := r.Public()

	assert.Equal(t, "an***@example.com", pub.Email)
	require.Len(t, pub.PlusOnes, 2)
	assert.Equal(t, "bi***@example.com", pub.PlusOnes[0].Email)
	assert.Equal(t, "", pub.PlusOnes[1].Email)
	assert.Equal(t, "ana@example.com", r.Email, "source record must stay unmasked")
	assert.NotNil(t, pub.Trophies)
}

func TestAttendees(t *testing.T) {
	r := &Rsvp{
		Name:     "Ana",
		Email:    "ana@example.com",
		PlusOnes: []PlusOne{{Name: "Bia", Email: "bia@example.com"}, {Name: "Caio"}},
	}

	got := r.Attendees()

	assert.Equal(t, []Attendee{
		{Email: "ana@example.com", DisplayName: "Ana"},
		{Email: "bia@example.com", DisplayName: "Bia"},
	}, got)
	assert.Equal(t, []string{"Bia", "Caio"}, r.PlusOneNames())
}
