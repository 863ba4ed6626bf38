package sequencing_run_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// EmedgeneService drives case creation on the Emedgene interpretation
// platform. Tokens from api_login expire after 8 hours, so every call
// re-authenticates on demand instead of caching the header long-term.
type EmedgeneService struct {
	server    string
	username  string
	password  string
	token     string
	tokenTime time.Time
	client    *http.Client
}

const emgTokenLifetime = 8 * time.Hour

func NewEmedgeneService(server, username, password string) *EmedgeneService {
	return &EmedgeneService{
		server:   server,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// EmedgeneCase is the JSON payload POSTed to /api/cases/v2/cases/. The
// field set matches the Case_creation-script_v2 batch manifest.
type EmedgeneCase struct {
	CaseGroupNumber string            `json:"case_group_number"`
	CaseType        string            `json:"case_type"`
	ClinicalNotes   string            `json:"clinical_notes"`
	Label           string            `json:"label"`
	Patients        []EmedgenePatient `json:"patients"`
}

type EmedgenePatient struct {
	SampleName  string    `json:"sample_name"`
	Relation    string    `json:"relation"`
	Gender      string    `json:"gender"`
	DateOfBirth string    `json:"date_of_birth"`
	Affected    bool      `json:"affected"`
	Fastqs      []string  `json:"filenames"`
	Phenotypes  []HPOTerm `json:"phenotypes"`
}

// CaseMember bundles what the payload builder needs per family member: the
// clinical record from Nanuq, the observed phenotypes (proband only) and the
// sequenced-file paths from BaseSpace.
type CaseMember struct {
	Sample NanuqSample
	HPOs   []HPOTerm
	Fastqs []string
}

// BuildCase assembles the case payload for one family. The case group
// number is a fresh UUID; the site label and clinical notes carry the run id
// so cases can be traced back to their sequencing run.
func BuildCase(runID string, members []CaseMember) EmedgeneCase {
	emgCase := EmedgeneCase{
		CaseGroupNumber: uuid.NewString(),
		CaseType:        "Whole Genome",
		ClinicalNotes:   runID,
	}
	for _, member := range members {
		patient := EmedgenePatient{
			SampleName:  member.Sample.LDMSampleID,
			Relation:    member.Sample.Patient.FamilyMember,
			Gender:      member.Sample.Patient.Sex,
			DateOfBirth: member.Sample.Patient.BirthDate,
			Affected:    member.Sample.Patient.Status == "AFF",
			Fastqs:      member.Fastqs,
			Phenotypes:  member.HPOs,
		}
		if patient.Relation == "PROBAND" {
			emgCase.Label = member.Sample.Patient.EP
		}
		emgCase.Patients = append(emgCase.Patients, patient)
	}
	return emgCase
}

// SubmitCase POSTs a case for creation and returns Emedgene's response body.
func (e *EmedgeneService) SubmitCase(ctx context.Context, emgCase EmedgeneCase) ([]byte, error) {
	payload, err := json.Marshal(emgCase)
	if err != nil {
		return nil, fmt.Errorf("Failed to marshal case '%s': %q", emgCase.CaseGroupNumber, err)
	}
	token, err := e.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	url := e.server + "/api/cases/v2/cases/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to submit case '%s': %q", emgCase.CaseGroupNumber, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Failed to read emedgene response: %q", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("emedgene returned %d creating case '%s': %s", resp.StatusCode, emgCase.CaseGroupNumber, body)
	}
	return body, nil
}

// GetEmgID looks up the Emedgene identifier (e.g. "EMG107903188") for a
// sample name. Returns an empty id when the sample is unknown.
func (e *EmedgeneService) GetEmgID(ctx context.Context, sample string) (string, error) {
	token, err := e.authenticate(ctx)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/api/sample/?query=%s&sampleType=fastq", e.server, sample)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", token)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Failed to query emedgene for sample '%s': %q", sample, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("unauthorized against emedgene (%d), token may have expired", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("emedgene returned %d for sample '%s'", resp.StatusCode, sample)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Failed to read emedgene response: %q", err)
	}
	result, err := UnmarshalT[struct {
		Total int `json:"total"`
		Hits  []struct {
			Note string `json:"note"`
		} `json:"hits"`
	}](body)
	if err != nil {
		return "", fmt.Errorf("Failed to unmarshal emedgene sample query: %q", err)
	}
	switch result.Total {
	case 0:
		return "", nil
	case 1:
		return result.Hits[0].Note, nil
	}
	return "", fmt.Errorf("more than one emedgene sample found for '%s': %d", sample, result.Total)
}

func (e *EmedgeneService) authenticate(ctx context.Context) (string, error) {
	if e.token != "" && time.Since(e.tokenTime) < emgTokenLifetime {
		return e.token, nil
	}
	creds, err := json.Marshal(map[string]string{"username": e.username, "password": e.password})
	if err != nil {
		return "", err
	}
	url := e.server + "/api/auth/api_login/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(creds))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Failed to log into emedgene: %q", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("emedgene login returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Failed to read emedgene login response: %q", err)
	}
	auth, err := UnmarshalT[struct {
		Authorization string `json:"Authorization"`
	}](body)
	if err != nil {
		return "", fmt.Errorf("Failed to unmarshal emedgene login response: %q", err)
	}
	e.token = auth.Authorization
	e.tokenTime = time.Now()
	return e.token, nil
}
