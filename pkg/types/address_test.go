package types

import (
	"reflect"
	"testing"
)

func TestAddressWithDefaultsFillsBlanksOnly(t *testing.T) {
	profile := Address{FullName: "Ada Buyer", Phone: "555", Line1: "1 Main", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"}
	given := Address{Line1: " 9 Elm ", City: ""}

	got := given.WithDefaults(profile)
	if got.Line1 != "9 Elm" {
		t.Fatalf("expected provided line1 to win, got %q", got.Line1)
	}
	if got.City != "Austin" || got.FullName != "Ada Buyer" {
		t.Fatalf("expected blanks filled from profile, got %+v", got)
	}
}

func TestAddressMissingFields(t *testing.T) {
	got := Address{Line1: "1 Main", City: "Austin"}.MissingFields()
	want := []string{"full_name", "postal_code", "country"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
