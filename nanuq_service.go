package sequencing_run_gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NanuqService talks to the Nanuq LIMS over its form-authenticated web API.
// Every request POSTs the j_username/j_password pair, the way the LIMS
// expects it; there are no sessions or cookies.
type NanuqService struct {
	server   string
	username string
	password string
	client   *http.Client
}

// sequencers are the instrument serials Nanuq knows about, used to validate
// short-form run names.
var sequencers = []string{"LH00336", "A00516", "A00977", "NB551410"}

func NewNanuqService(server, username, password string) *NanuqService {
	return &NanuqService{
		server:   server,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// NewNanuqServiceFromFile reads credentials from a single-line file of the
// form "j_username=USER&j_password=PASS&toto=1" (the operators keep one in
// ~/.nanuq).
func NewNanuqServiceFromFile(server, credsPath string) (*NanuqService, error) {
	line, err := os.ReadFile(credsPath)
	if err != nil {
		return nil, fmt.Errorf("Failed to read nanuq credentials '%s': %q", credsPath, err)
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(line)))
	if err != nil {
		return nil, fmt.Errorf("Failed to parse nanuq credentials '%s': %q", credsPath, err)
	}
	username := values.Get("j_username")
	password := values.Get("j_password")
	if username == "" || password == "" {
		return nil, fmt.Errorf("nanuq credentials file '%s' is missing j_username or j_password", credsPath)
	}
	return NewNanuqService(server, username, password), nil
}

// CheckRunName validates a run identifier and shortens the long flowcell form
// when needed. Accepted inputs: "A00516_0106", "Seq_S2_PRAG_20230811" and
// the long "200302_A00516_0106_BHNKHFDMXX" (converted to "A00516_0106").
func (n *NanuqService) CheckRunName(run string) (string, error) {
	parts := strings.Split(run, "_")
	if len(parts) == 4 && parts[0] == "Seq" {
		return run, nil
	}
	if len(parts) == 2 && isSequencer(parts[0]) && len(parts[1]) == 4 {
		return run, nil
	}
	if len(parts) == 4 && isSequencer(parts[1]) && len(parts[2]) == 4 {
		return parts[1] + "_" + parts[2], nil
	}
	return "", fmt.Errorf("incorrect format for run id '%s', expected something like 'A00516_0106'", run)
}

func isSequencer(serial string) bool {
	for _, s := range sequencers {
		if serial == s {
			return true
		}
	}
	return false
}

// GetSampleSheet downloads the SampleSheet (v2 endpoint) for a run.
func (n *NanuqService) GetSampleSheet(ctx context.Context, run string) (string, error) {
	run, err := n.CheckRunName(run)
	if err != nil {
		return "", err
	}
	return n.getAPI(ctx, fmt.Sprintf("%s/nanuqMPS/sampleSheetV2/NovaSeq/%s/", n.server, run))
}

// GetSampleNames downloads the sample conversion table (SampleNames.txt) for
// a run.
func (n *NanuqService) GetSampleNames(ctx context.Context, run string) (string, error) {
	run, err := n.CheckRunName(run)
	if err != nil {
		return "", err
	}
	return n.getAPI(ctx, fmt.Sprintf("%s/nanuqMPS/sampleConversionTable/run/%s/technology/NovaSeq/", n.server, run))
}

// GetSamplePools downloads the pooling sample sheet (SamplePools.csv) for a
// run.
func (n *NanuqService) GetSamplePools(ctx context.Context, run string) (string, error) {
	run, err := n.CheckRunName(run)
	if err != nil {
		return "", err
	}
	return n.getAPI(ctx, fmt.Sprintf("%s/nanuqMPS/poolingSampleSheet/run/%s/technology/NovaSeq/", n.server, run))
}

// DownloadRunFiles fetches SampleSheet.csv, SampleNames.txt and
// SamplePools.csv for a run into dir.
func (n *NanuqService) DownloadRunFiles(ctx context.Context, run, dir string) error {
	files := []struct {
		name  string
		fetch func(context.Context, string) (string, error)
	}{
		{"SampleSheet.csv", n.GetSampleSheet},
		{"SampleNames.txt", n.GetSampleNames},
		{"SamplePools.csv", n.GetSamplePools},
	}
	for _, f := range files {
		content, err := f.fetch(ctx, run)
		if err != nil {
			return fmt.Errorf("Failed to download %s for run '%s': %q", f.name, run, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(content), 0644); err != nil {
			return fmt.Errorf("Failed to write %s: %q", f.name, err)
		}
	}
	return nil
}

// GetSample fetches the clinical record for a CQGC sample id. Nanuq answers
// with a JSON array, normally of one element.
func (n *NanuqService) GetSample(ctx context.Context, cqgcID string) ([]NanuqSample, error) {
	body, err := n.getAPI(ctx, fmt.Sprintf("%s/nanuqMPS/ws/GetClinicalSampleInfoWS?name=%s", n.server, cqgcID))
	if err != nil {
		return nil, err
	}
	samples, err := UnmarshalT[[]NanuqSample]([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("Failed to unmarshal clinical info for sample '%s': %q", cqgcID, err)
	}
	return samples, nil
}

func (n *NanuqService) getAPI(ctx context.Context, rawURL string) (string, error) {
	form := url.Values{}
	form.Set("j_username", n.username)
	form.Set("j_password", n.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Failed to reach nanuq at '%s': %q", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Failed to read nanuq response: %q", err)
	}
	if resp.StatusCode == http.StatusBadRequest {
		return "", fmt.Errorf("nanuq returned 400 for '%s'; try the alternative run format 'A00516_0447' or 'Seq_S2_PRAG_20230811'", rawURL)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nanuq returned %d for '%s'", resp.StatusCode, rawURL)
	}
	return string(body), nil
}

// ParseSampleNames extracts the CQGC sample ids (Illumina's "biosamples")
// from the content of SampleNames.txt: one tab-separated "cqgcID<TAB>name"
// pair per line, '#' comment lines skipped. A bare one-column id list also
// works.
func ParseSampleNames(content string) []string {
	biosamples := []string{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		biosamples = append(biosamples, fields[0])
	}
	return biosamples
}

// NanuqSample is the clinical record Nanuq keeps per aliquot.
type NanuqSample struct {
	LabAliquotID        string       `json:"labAliquotId"`
	LDM                 string       `json:"ldm"`
	LDMSampleID         string       `json:"ldmSampleId"`
	LDMServiceRequestID string       `json:"ldmServiceRequestId"`
	LDMSpecimenID       string       `json:"ldmSpecimenId"`
	LibType             string       `json:"libType"`
	PanelCode           string       `json:"panelCode"`
	Patient             NanuqPatient `json:"patient"`
	Priority            string       `json:"priority"`
	ProjectGroup        string       `json:"projectGroup"`
	ProjectName         string       `json:"projectName"`
	SampleType          string       `json:"sampleType"`
	SpecimenType        string       `json:"specimenType"`
}

type NanuqPatient struct {
	BirthDate    string `json:"birthDate"`
	EP           string `json:"ep"`
	FamilyID     string `json:"familyId"`
	FamilyMember string `json:"familyMember"`
	Fetus        bool   `json:"fetus"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	MRN          string `json:"mrn"`
	RAMQ         string `json:"ramq"`
	Sex          string `json:"sex"`
	Status       string `json:"status"`
}
