package shops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/testkit"
)

func TestSpecialtyQueryFirstMatchWins(t *testing.T) {
	// "gold watch" matches both the watch row and the jewelry row; the
	// earlier row carries priority.
	assert.Equal(t, "watch dealer", SpecialtyQuery("Vintage gold Omega watch"))

	assert.Equal(t, "jewelry buyer", SpecialtyQuery("14k gold ring"))
	assert.Equal(t, "used bike shop", SpecialtyQuery("2024 Specialized Stumpjumper mountain bike"))
	assert.Equal(t, "electronics resale store", SpecialtyQuery("MacBook Pro laptop 2021"))
}

func TestSpecialtyQueryDefaultsToNone(t *testing.T) {
	assert.Empty(t, SpecialtyQuery("ceramic garden gnome"))
	assert.Empty(t, SpecialtyQuery(""))
}

func TestDedupeByNameKeepsFirstSeen(t *testing.T) {
	listings := []Listing{
		{Name: "Gold & Sons", Address: "1 Main St", Type: TypePawn},
		{Name: "Brooklyn Buyers", Address: "2 Court St", Type: TypePawn},
		{Name: "gold & sons", Address: "99 Other Ave", Type: TypeBuyer},
	}

	out := DedupeByName(listings)
	require.Len(t, out, 2)
	assert.Equal(t, "1 Main St", out[0].Address)
	assert.Equal(t, TypePawn, out[0].Type)
}

func TestPreferWithPhone(t *testing.T) {
	withPhones := []Listing{
		{Name: "A", Phone: "718-555-0100"},
		{Name: "B"},
		{Name: "C", Phone: "718-555-0101"},
	}
	out := PreferWithPhone(withPhones)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Name)
	assert.Equal(t, "C", out[1].Name)

	// When no listing has a phone, nothing is dropped.
	phoneless := []Listing{{Name: "A"}, {Name: "B"}}
	assert.Len(t, PreferWithPhone(phoneless), 2)
}

func TestFindMergesAndDeduplicates(t *testing.T) {
	srv := testkit.MockSearchAPIServer([]map[string]any{
		{"title": "EZ Pawn", "address": "12 Atlantic Ave", "phone": "718-555-0100", "rating": 4.2},
		{"title": "Borough Gold Exchange", "address": "88 Flatbush Ave", "phone": "718-555-0101", "rating": 4.7},
	})
	defer srv.Close()

	c := NewClient("test-key", srv.URL, 10)
	listings, err := c.Find(context.Background(), "14k gold ring", "@40.7009973,-73.994778")
	require.NoError(t, err)

	// Three categories run (pawn, jewelry specialty, buyer) but the mock
	// returns the same two shops for each, so dedupe leaves exactly two.
	require.Len(t, listings, 2)
	assert.Equal(t, "EZ Pawn", listings[0].Name)
	assert.Equal(t, TypePawn, listings[0].Type)
}

func TestFindFailsWhenEveryCategoryFails(t *testing.T) {
	srv := testkit.MockSearchAPIServer(nil)
	srv.Close() // Connection refused for every request

	c := NewClient("test-key", srv.URL, 10)
	_, err := c.Find(context.Background(), "gnome", "@40.7,-73.9")
	assert.Error(t, err)
}
