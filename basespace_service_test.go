package sequencing_run_gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestBaseSpaceService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v2/biosamples/":
			if r.URL.Query().Get("biosamplename") != "25479" {
				w.Write([]byte(`{"Items":[],"Paging":{"TotalCount":0}}`))
				return
			}
			w.Write([]byte(`{"Items":[{"Id":"bio123"}],"Paging":{"TotalCount":1}}`))
		case "/v2/datasets/":
			if r.URL.Query().Get("inputbiosamples") != "bio123" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"Items":[{"Id":"ds1","Project":{"Id":"pj9","Name":"PRAGMatIQ"}}],"Paging":{"TotalCount":1}}`))
		case "/v2/datasets/ds1/files":
			w.Write([]byte(`{"Items":[{"Id":"f1"},{"Id":"f2"}],"Paging":{"TotalCount":2}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	basespace := NewBaseSpaceService(server.URL, "token")
	ctx := context.Background()

	t.Run("GetBiosampleID", func(t *testing.T) {
		id, err := basespace.GetBiosampleID(ctx, "25479")
		if err != nil {
			t.Fatalf("cannot GetBiosampleID: %q", err)
		}
		if id != "bio123" {
			t.Errorf("got %q want %q", id, "bio123")
		}
	})

	t.Run("GetBiosampleID with an unknown name", func(t *testing.T) {
		if _, err := basespace.GetBiosampleID(ctx, "99999"); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("GetDatasets", func(t *testing.T) {
		datasets, err := basespace.GetDatasets(ctx, "bio123")
		if err != nil {
			t.Fatalf("cannot GetDatasets: %q", err)
		}
		want := []BaseSpaceDataset{{ID: "ds1", ProjectID: "pj9", ProjectName: "PRAGMatIQ"}}
		if !reflect.DeepEqual(datasets, want) {
			t.Errorf("got %v want %v", datasets, want)
		}
	})

	t.Run("GetSequencedFiles composes the pseudo-paths", func(t *testing.T) {
		files, err := basespace.GetSequencedFiles(ctx, "25479")
		if err != nil {
			t.Fatalf("cannot GetSequencedFiles: %q", err)
		}
		want := []string{
			"/projects/pj9/biosamples/bio123/datasets/ds1/sequenced files/f1",
			"/projects/pj9/biosamples/bio123/datasets/ds1/sequenced files/f2",
		}
		if !reflect.DeepEqual(files, want) {
			t.Errorf("got %v want %v", files, want)
		}
	})
}
