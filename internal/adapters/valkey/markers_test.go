package valkey

import "testing"

func TestMarkerRecordValidate(t *testing.T) {
	good := markerRecord{ID: 1, Lat: 13.75, Lon: 100.5, Title: "Depot"}
	if err := good.validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	cases := []markerRecord{
		{ID: 0, Lat: 13.75, Lon: 100.5, Title: "Depot"},
		{ID: -3, Lat: 13.75, Lon: 100.5, Title: "Depot"},
		{ID: 1, Lat: 13.75, Lon: 100.5},
		{ID: 1, Lat: 91, Lon: 100.5, Title: "Depot"},
		{ID: 1, Lat: -90.5, Lon: 100.5, Title: "Depot"},
		{ID: 1, Lat: 13.75, Lon: 180.1, Title: "Depot"},
		{ID: 1, Lat: 13.75, Lon: -181, Title: "Depot"},
	}
	for _, rec := range cases {
		if err := rec.validate(); err == nil {
			t.Errorf("record %+v passed validation", rec)
		}
	}
}

func TestDecodeMarkerListSkipsBadRecords(t *testing.T) {
	payload := []byte(`[
		{"id":1,"lat":13.75,"lon":100.5,"title":"Good"},
		{"id":2,"lat":"oops","lon":100.5,"title":"Corrupted"},
		{"id":3,"lat":13.8,"lon":100.6},
		{"id":4,"lat":95.0,"lon":100.5,"title":"OffPlanet"},
		{"id":5,"lat":18.79,"lon":98.98,"title":"AlsoGood"}
	]`)

	markers, err := decodeMarkerList(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("kept %d markers, want 2", len(markers))
	}
	if markers[0].ID != 1 || markers[1].ID != 5 {
		t.Fatalf("kept ids %d, %d; want 1, 5", markers[0].ID, markers[1].ID)
	}
	if markers[0].Title != "Good" {
		t.Fatalf("title %q", markers[0].Title)
	}
}

func TestDecodeMarkerListRejectsNonArray(t *testing.T) {
	if _, err := decodeMarkerList([]byte(`{"id":1}`)); err == nil {
		t.Fatal("non-array payload accepted")
	}
}
