package sequencing_run_gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// BaseSpaceService queries Illumina's BaseSpace Sequence Hub for the
// locations of sequenced files. Emedgene consumes these as slash-delimited
// pseudo-paths rather than URLs.
type BaseSpaceService struct {
	server string
	token  string
	client *http.Client
}

func NewBaseSpaceService(server, token string) *BaseSpaceService {
	return &BaseSpaceService{
		server: server,
		token:  token,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type bsItems struct {
	Items []struct {
		ID      string `json:"Id"`
		Project struct {
			ID   string `json:"Id"`
			Name string `json:"Name"`
		} `json:"Project"`
	} `json:"Items"`
	Paging struct {
		TotalCount int `json:"TotalCount"`
	} `json:"Paging"`
}

// BaseSpaceDataset locates a FASTQ dataset within its project.
type BaseSpaceDataset struct {
	ID          string
	ProjectID   string
	ProjectName string
}

// GetBiosampleID resolves a biosample name (the CQGC sample id) to its
// BaseSpace identifier.
func (b *BaseSpaceService) GetBiosampleID(ctx context.Context, biosampleName string) (string, error) {
	query := url.Values{"biosamplename": {biosampleName}}
	items, err := b.getItems(ctx, "/v2/biosamples/", query)
	if err != nil {
		return "", err
	}
	if len(items.Items) == 0 {
		return "", fmt.Errorf("no biosample named '%s' in basespace", biosampleName)
	}
	return items.Items[0].ID, nil
}

// GetDatasets lists the datasets produced for a biosample id. More than one
// dataset usually means the sample was sequenced over several lanes or runs.
func (b *BaseSpaceService) GetDatasets(ctx context.Context, biosampleID string) ([]BaseSpaceDataset, error) {
	query := url.Values{"inputbiosamples": {biosampleID}}
	items, err := b.getItems(ctx, "/v2/datasets/", query)
	if err != nil {
		return nil, err
	}
	if len(items.Items) != items.Paging.TotalCount {
		log.Printf("Found %d datasets but expected %d for biosample %s", len(items.Items), items.Paging.TotalCount, biosampleID)
	}
	datasets := make([]BaseSpaceDataset, 0, len(items.Items))
	for _, item := range items.Items {
		datasets = append(datasets, BaseSpaceDataset{ID: item.ID, ProjectID: item.Project.ID, ProjectName: item.Project.Name})
	}
	return datasets, nil
}

// GetSequencedFiles composes the Emedgene-style paths of every sequenced
// file (FASTQ) attached to a biosample name:
// /projects/{pid}/biosamples/{bid}/datasets/{did}/sequenced files/{fid}
func (b *BaseSpaceService) GetSequencedFiles(ctx context.Context, biosampleName string) ([]string, error) {
	biosampleID, err := b.GetBiosampleID(ctx, biosampleName)
	if err != nil {
		return nil, err
	}
	datasets, err := b.GetDatasets(ctx, biosampleID)
	if err != nil {
		return nil, err
	}
	fastqs := []string{}
	for _, dataset := range datasets {
		query := url.Values{"limit": {strconv.Itoa(100)}}
		items, err := b.getItems(ctx, fmt.Sprintf("/v2/datasets/%s/files", dataset.ID), query)
		if err != nil {
			return nil, err
		}
		for _, item := range items.Items {
			fastqs = append(fastqs, fmt.Sprintf("/projects/%s/biosamples/%s/datasets/%s/sequenced files/%s",
				dataset.ProjectID, biosampleID, dataset.ID, item.ID))
		}
	}
	return fastqs, nil
}

func (b *BaseSpaceService) getItems(ctx context.Context, endpoint string, query url.Values) (bsItems, error) {
	var items bsItems
	reqURL := b.server + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return items, err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return items, fmt.Errorf("Failed to reach basespace at '%s': %q", reqURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return items, fmt.Errorf("basespace returned %d for '%s'", resp.StatusCode, reqURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return items, fmt.Errorf("Failed to read basespace response: %q", err)
	}
	items, err = UnmarshalT[bsItems](body)
	if err != nil {
		return items, fmt.Errorf("Failed to unmarshal basespace response: %q", err)
	}
	return items, nil
}
