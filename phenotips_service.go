package sequencing_run_gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PhenotipsService reads patient phenotype records from a Phenotips
// (Gene42) instance. Requests carry the Basic authorization plus the
// X-Gene42-Secret header issued for the institution.
type PhenotipsService struct {
	server string
	auth   string
	secret string
	client *http.Client
}

var pidRe = regexp.MustCompile(`^P\d{7}$`)

func NewPhenotipsService(server, auth, secret string) *PhenotipsService {
	return &PhenotipsService{
		server: server,
		auth:   auth,
		secret: secret,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// PhenotipsPatient is the subset of a patient record the pipeline uses.
type PhenotipsPatient struct {
	ID         string       `json:"id"`
	ExternalID string       `json:"external_id"`
	Sex        string       `json:"sex"`
	Features   []HPOFeature `json:"features"`
}

// HPOFeature is one phenotype annotation on a patient. Observed is the
// string "yes" or "no" as Phenotips stores it.
type HPOFeature struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Observed string `json:"observed"`
}

// HPOTerm is an observed phenotype, ready for a case payload.
type HPOTerm struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GetPatient fetches a patient by Phenotips id (format "P0000001").
func (p *PhenotipsService) GetPatient(ctx context.Context, pid string) (PhenotipsPatient, error) {
	var patient PhenotipsPatient
	if !pidRe.MatchString(pid) {
		return patient, fmt.Errorf("wrong format for phenotips id '%s', should be like 'P0000001'", pid)
	}
	return p.getPatient(ctx, p.server+"/rest/patients/"+pid)
}

// GetPatientByMRN fetches a patient by labeled external id. In Phenotips the
// medical record number is stored prefixed with the site's initials
// (e.g. "CHUSJ3421069"); see FormatMRNForSite.
func (p *PhenotipsService) GetPatientByMRN(ctx context.Context, mrn string) (PhenotipsPatient, error) {
	return p.getPatient(ctx, p.server+"/rest/patients/labeled-eid/MRN/"+mrn)
}

func (p *PhenotipsService) getPatient(ctx context.Context, url string) (PhenotipsPatient, error) {
	var patient PhenotipsPatient
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return patient, err
	}
	req.Header.Set("Authorization", p.auth)
	req.Header.Set("X-Gene42-Secret", p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return patient, fmt.Errorf("Failed to reach phenotips at '%s': %q", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return patient, fmt.Errorf("phenotips returned %d for '%s'", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return patient, fmt.Errorf("Failed to read phenotips response: %q", err)
	}
	patient, err = UnmarshalT[PhenotipsPatient](body)
	if err != nil {
		return patient, fmt.Errorf("Failed to unmarshal phenotips patient: %q", err)
	}
	return patient, nil
}

// ObservedHPOTerms keeps only the features marked observed="yes", the ones
// relevant for case creation.
func ObservedHPOTerms(patient PhenotipsPatient) []HPOTerm {
	terms := []HPOTerm{}
	for _, feature := range patient.Features {
		if feature.Observed == "yes" {
			terms = append(terms, HPOTerm{ID: feature.ID, Label: feature.Label})
		}
	}
	return terms
}

// GetHPOTerms fetches a patient by PID and returns its observed HPO terms.
func (p *PhenotipsService) GetHPOTerms(ctx context.Context, pid string) ([]HPOTerm, error) {
	patient, err := p.GetPatient(ctx, pid)
	if err != nil {
		return nil, err
	}
	return ObservedHPOTerms(patient), nil
}

// FormatMRNForSite builds the labeled external id Phenotips expects from a
// site code and the MRN as Nanuq reports it. The conventions vary by site:
// CHUSJ prepends a leading "0" in Nanuq that Phenotips does not have, and
// CHUQ records arrive from Nanuq under the CHUL label.
func FormatMRNForSite(ep, mrn string) string {
	switch ep {
	case "CHUSJ":
		mrn = strings.TrimLeft(mrn, "0")
	case "CHUQ":
		return strings.ReplaceAll(mrn, "L", "Q")
	}
	return ep + mrn
}
