package sequencing_run_gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestObservedHPOTerms(t *testing.T) {
	patient, err := UnmarshalT[PhenotipsPatient]([]byte(PhenotipsPatientJSON))
	if err != nil {
		t.Fatalf("cannot unmarshal patient: %q", err)
	}
	want := []HPOTerm{
		{ID: "HP:0001250", Label: "Seizures"},
		{ID: "HP:0001561", Label: "Polyhydramnios"},
	}
	got := ObservedHPOTerms(patient)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestFormatMRNForSite(t *testing.T) {
	tests := []struct {
		name string
		ep   string
		mrn  string
		want string
	}{
		{"chusj drops the leading zeros", "CHUSJ", "03421069", "CHUSJ3421069"},
		{"chuq maps L to Q", "CHUQ", "L1234", "Q1234"},
		{"other sites are prefixed as is", "CUSM", "5678", "CUSM5678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMRNForSite(tt.ep, tt.mrn); got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestPhenotipsService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic dXNlcjpwdw==" || r.Header.Get("X-Gene42-Secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/rest/patients/P0000808":
			w.Write([]byte(PhenotipsPatientJSON))
		case "/rest/patients/labeled-eid/MRN/CHUSJ3421069":
			w.Write([]byte(PhenotipsPatientJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	phenotips := NewPhenotipsService(server.URL, "Basic dXNlcjpwdw==", "secret")
	ctx := context.Background()

	t.Run("GetPatient", func(t *testing.T) {
		patient, err := phenotips.GetPatient(ctx, "P0000808")
		if err != nil {
			t.Fatalf("cannot GetPatient: %q", err)
		}
		if patient.ID != "P0000808" || patient.ExternalID != "CHUSJ3421069" {
			t.Errorf("got %v", patient)
		}
	})

	t.Run("GetPatient rejects a malformed pid", func(t *testing.T) {
		if _, err := phenotips.GetPatient(ctx, "808"); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("GetPatientByMRN", func(t *testing.T) {
		patient, err := phenotips.GetPatientByMRN(ctx, FormatMRNForSite("CHUSJ", "03421069"))
		if err != nil {
			t.Fatalf("cannot GetPatientByMRN: %q", err)
		}
		if patient.ID != "P0000808" {
			t.Errorf("got %v", patient)
		}
	})

	t.Run("GetHPOTerms", func(t *testing.T) {
		terms, err := phenotips.GetHPOTerms(ctx, "P0000808")
		if err != nil {
			t.Fatalf("cannot GetHPOTerms: %q", err)
		}
		if len(terms) != 2 {
			t.Errorf("got %d terms want 2", len(terms))
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		if _, err := phenotips.GetPatient(ctx, "P9999999"); err == nil {
			t.Error("expected an error")
		}
	})
}
