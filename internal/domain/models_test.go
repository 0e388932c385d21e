package domain

import "testing"

func TestTableNames(t *testing.T) {
	if got := (Car{}).TableName(); got != "cars" {
		t.Fatalf("Car table = %q", got)
	}
	if got := (CarFeature{}).TableName(); got != "car_features" {
		t.Fatalf("CarFeature table = %q", got)
	}
}

func TestHasListingURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://cars.example.com/1", true},
		{"", false},
		{"   ", false},
		{"\t\n", false},
		{" https://cars.example.com/1 ", true},
	}
	for _, tc := range cases {
		if got := (Car{ListingURL: tc.url}).HasListingURL(); got != tc.want {
			t.Fatalf("HasListingURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
