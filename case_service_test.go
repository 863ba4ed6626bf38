package sequencing_run_gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCaseServiceProcessRun(t *testing.T) {
	nanuqServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/nanuqMPS/sampleConversionTable/run/A00516_0420/"):
			w.Write([]byte("25479\tGM251234\n"))
		case r.URL.Path == "/nanuqMPS/ws/GetClinicalSampleInfoWS":
			w.Write([]byte(NanuqSampleJSON))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer nanuqServer.Close()

	phenotipsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/patients/labeled-eid/MRN/CHUSJ3421069" {
			w.Write([]byte(PhenotipsPatientJSON))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer phenotipsServer.Close()

	basespaceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/biosamples/":
			w.Write([]byte(`{"Items":[{"Id":"bio123"}],"Paging":{"TotalCount":1}}`))
		case "/v2/datasets/":
			w.Write([]byte(`{"Items":[{"Id":"ds1","Project":{"Id":"pj9","Name":"PRAGMatIQ"}}],"Paging":{"TotalCount":1}}`))
		case "/v2/datasets/ds1/files":
			w.Write([]byte(`{"Items":[{"Id":"f1"}],"Paging":{"TotalCount":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer basespaceServer.Close()

	submittedCases := 0
	emedgeneServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/api_login/":
			w.Write([]byte(`{"Authorization": "Bearer emgtoken"}`))
		case "/api/cases/v2/cases/":
			submittedCases++
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"case_id": "42"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer emedgeneServer.Close()

	validated := 0
	qlinServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			w.Write([]byte(`{"token": "qlintoken"}`))
		case "/api/v1/analysis":
			if r.URL.Query().Get("validate-only") == "true" {
				validated++
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer qlinServer.Close()

	caseService := NewCaseService(
		NewNanuqService(nanuqServer.URL, "user", "pw"),
		NewPhenotipsService(phenotipsServer.URL, "Basic auth", "secret"),
		NewBaseSpaceService(basespaceServer.URL, "token"),
		NewEmedgeneService(emedgeneServer.URL, "user", "pw"),
		NewQLINService(qlinServer.URL, "user@cqgc.ca", "pw"),
		nil, "")

	err := caseService.ProcessRun(context.Background(), "250620_A00516_0420_AHGYCYDSXF", true)
	if err != nil {
		t.Fatalf("cannot ProcessRun: %q", err)
	}
	if submittedCases != 1 {
		t.Errorf("got %d submitted cases want 1", submittedCases)
	}
	if validated != 1 {
		t.Errorf("got %d validated analyses want 1", validated)
	}
}

func TestCollectFamilies(t *testing.T) {
	nanuqServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/nanuqMPS/sampleConversionTable/run/A00516_0420/"):
			w.Write([]byte("25479\tGM251234\n25999\tCONTROL\n"))
		case r.URL.Path == "/nanuqMPS/ws/GetClinicalSampleInfoWS":
			if r.URL.Query().Get("name") == "25479" {
				w.Write([]byte(NanuqSampleJSON))
				return
			}
			// controls have no clinical record
			w.Write([]byte("[]"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer nanuqServer.Close()

	caseService := NewCaseService(NewNanuqService(nanuqServer.URL, "user", "pw"), nil, nil, nil, nil, nil, "")
	families, err := caseService.CollectFamilies(context.Background(), "A00516_0420")
	if err != nil {
		t.Fatalf("cannot CollectFamilies: %q", err)
	}
	if len(families) != 1 {
		t.Fatalf("got %d families want 1", len(families))
	}
	if len(families["FAM0042"]) != 1 {
		t.Errorf("got %v", families["FAM0042"])
	}
}
