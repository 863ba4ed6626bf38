package sequencing_run_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// QLINService creates analyses, patients and sequencings in the QLIN case
// management system. Authentication is email/password against
// /api/v1/auth/login, which returns a bearer token.
type QLINService struct {
	server   string
	email    string
	password string
	token    string
	client   *http.Client
}

func NewQLINService(server, email, password string) *QLINService {
	return &QLINService{
		server:   server,
		email:    email,
		password: password,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// AnalysisPayload is the body of POST /api/v1/analysis.
type AnalysisPayload struct {
	Type                string        `json:"type"`
	AnalysisCode        string        `json:"analysis_code"`
	Priority            string        `json:"priority"`
	DiagnosisHypothesis string        `json:"diagnosis_hypothesis"`
	SequencingTypes     []string      `json:"sequencing_types"`
	Patients            []QLINPatient `json:"patients"`
}

type QLINPatient struct {
	FamilyMember   string        `json:"family_member"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	JHN            string        `json:"jhn,omitempty"`
	MRN            string        `json:"mrn"`
	Sex            string        `json:"sex"`
	BirthDate      string        `json:"birth_date"`
	OrganizationID string        `json:"organization_id"`
	LaboratoryID   string        `json:"laboratory_id"`
	Sample         string        `json:"sample"`
	Specimen       string        `json:"specimen"`
	Aliquot        string        `json:"aliquot"`
	Affected       *bool         `json:"affected,omitempty"`
	Status         string        `json:"status,omitempty"`
	Clinical       *QLINClinical `json:"clinical,omitempty"`

	// Filled in from the creation response, consumed by the sequencing
	// payload builders.
	AnalysisID   string `json:"analysis_id,omitempty"`
	PatientID    string `json:"patient_id,omitempty"`
	SequencingID string `json:"sequencing_id,omitempty"`
}

type QLINClinical struct {
	Signs []QLINSign `json:"signs"`
}

type QLINSign struct {
	Code     string `json:"code"`
	Observed bool   `json:"observed"`
}

// familyMemberCodes normalizes the French family designations found in the
// HPO terms file to the codes QLIN expects.
var familyMemberCodes = map[string]string{
	"Proband": "PROBAND",
	"Père":    "FATHER",
	"Mère":    "MOTHER",
	"Frère":   "BRO",
	"Soeur":   "SIS",
	"MTH":     "MOTHER",
	"FTH":     "FATHER",
}

var sexCodes = map[string]string{
	"Mâle":    "MALE",
	"Femelle": "FEMALE",
	"Inconnu": "UNKNOWN",
}

// NormalizeFamilyMember maps a French or abbreviated family designation to
// the QLIN code, passing through values already in canonical form.
func NormalizeFamilyMember(member string) string {
	if code, ok := familyMemberCodes[member]; ok {
		return code
	}
	return member
}

// NormalizeSex maps a French sex designation to the QLIN code.
func NormalizeSex(sex string) string {
	if code, ok := sexCodes[sex]; ok {
		return code
	}
	return sex
}

// FormatBirthDate converts Nanuq's dd/mm/yyyy birth dates to the yyyy-mm-dd
// form QLIN expects. Dates already in ISO form pass through.
func FormatBirthDate(date string) (string, error) {
	if t, err := time.Parse("02/01/2006", date); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", date); err == nil {
		return date, nil
	}
	return "", fmt.Errorf("unrecognized birth date '%s'", date)
}

var nonAlphaRe = regexp.MustCompile(`[^a-zA-Z]`)

// defaultHPO is the placeholder term used when a patient has no recorded
// phenotype ("Inheritance modifier", accepted by QLIN as a stand-in).
const defaultHPO = "HP:0000005"

// AnalysisMember is one family member destined for a QLIN analysis: the
// Nanuq clinical record plus the semicolon-separated HPO codes collected for
// affected members.
type AnalysisMember struct {
	Sample NanuqSample
	HPO    string
}

// BuildAnalysisPayload assembles the analysis payload for one family. The
// proband's record decides the analysis type (from the Nanuq project group),
// the panel code and the priority. When fixNames is set, non-letter
// characters are stripped from first and last names, a recurring data-entry
// artifact in Nanuq.
func BuildAnalysisPayload(members []AnalysisMember, fixNames bool) (AnalysisPayload, error) {
	var payload AnalysisPayload
	var proband *AnalysisMember
	for i := range members {
		if NormalizeFamilyMember(members[i].Sample.Patient.FamilyMember) == "PROBAND" {
			proband = &members[i]
			break
		}
	}
	if proband == nil {
		return payload, fmt.Errorf("no proband among the %d family members", len(members))
	}

	switch proband.Sample.ProjectGroup {
	case "Exome_Somatique":
		payload.Type = "SOMATIC_TUMOR_ONLY"
	case "Exome_Germinal":
		payload.Type = "GERMLINE"
	default:
		return payload, fmt.Errorf("unknown project group '%s' for aliquot '%s'", proband.Sample.ProjectGroup, proband.Sample.LabAliquotID)
	}
	payload.SequencingTypes = []string{"WXS"}
	payload.AnalysisCode = proband.Sample.PanelCode
	if payload.AnalysisCode == "VEOIB" {
		payload.AnalysisCode = "VEOIBD"
	}
	payload.Priority = proband.Sample.Priority
	if payload.Priority == "" {
		payload.Priority = "ROUTINE"
	}
	payload.DiagnosisHypothesis = "diagnosis_hypothesis"

	for _, member := range members {
		birthDate, err := FormatBirthDate(member.Sample.Patient.BirthDate)
		if err != nil {
			return payload, fmt.Errorf("aliquot '%s': %v", member.Sample.LabAliquotID, err)
		}
		patient := QLINPatient{
			FamilyMember:   NormalizeFamilyMember(member.Sample.Patient.FamilyMember),
			FirstName:      member.Sample.Patient.FirstName,
			LastName:       member.Sample.Patient.LastName,
			JHN:            member.Sample.Patient.RAMQ,
			MRN:            member.Sample.Patient.MRN,
			Sex:            NormalizeSex(member.Sample.Patient.Sex),
			BirthDate:      birthDate,
			OrganizationID: member.Sample.Patient.EP,
			LaboratoryID:   member.Sample.LDM,
			Sample:         member.Sample.LDMSampleID,
			Specimen:       member.Sample.LDMSpecimenID,
			Aliquot:        member.Sample.LabAliquotID,
		}
		if fixNames {
			patient.FirstName = nonAlphaRe.ReplaceAllString(patient.FirstName, "")
			patient.LastName = nonAlphaRe.ReplaceAllString(patient.LastName, "")
		}
		affected := member.Sample.Patient.Status == "AFF"
		if patient.FamilyMember != "PROBAND" {
			patient.Affected = &affected
			patient.Status = "NOW"
		}
		if patient.FamilyMember == "PROBAND" || affected {
			hpo := member.HPO
			if hpo == "" {
				hpo = defaultHPO
			}
			signs := []QLINSign{}
			for _, code := range strings.Fields(strings.ReplaceAll(hpo, ";", " ")) {
				signs = append(signs, QLINSign{Code: strings.TrimRight(code, ";.,"), Observed: true})
			}
			patient.Clinical = &QLINClinical{Signs: signs}
		}
		payload.Patients = append(payload.Patients, patient)
	}
	return payload, nil
}

// AnonymizeAnalysisPayload scrambles the identifying fields (MRN, JHN,
// names) so a payload can be replayed against a staging instance.
func AnonymizeAnalysisPayload(payload AnalysisPayload) AnalysisPayload {
	for i := range payload.Patients {
		p := &payload.Patients[i]
		p.MRN = randomLowercase(8)
		if p.JHN != "" && len(p.JHN) > 4 {
			p.JHN = strings.ToUpper(randomLowercase(4) + p.JHN[4:])
		}
		p.FirstName = randomLowercase(8)
		p.LastName = randomLowercase(8)
	}
	return payload
}

func randomLowercase(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

// CreateAnalysis POSTs the analysis. With validateOnly the server dry-runs
// the payload (HTTP 200) and nothing is created; on a real creation (201)
// the returned payload carries the analysis, patient and sequencing ids the
// server assigned.
func (q *QLINService) CreateAnalysis(ctx context.Context, payload AnalysisPayload, validateOnly bool) (AnalysisPayload, bool, error) {
	body, status, err := q.post(ctx, fmt.Sprintf("/api/v1/analysis?validate-only=%t", validateOnly), payload)
	if err != nil {
		return payload, false, err
	}
	switch status {
	case http.StatusOK:
		return payload, false, nil
	case http.StatusCreated:
	default:
		return payload, false, fmt.Errorf("qlin analysis creation returned %d: %s", status, body)
	}

	created, err := UnmarshalT[struct {
		AnalysisID string `json:"analysis_id"`
		Patients   []struct {
			FamilyMember string `json:"family_member"`
			PatientID    string `json:"patient_id"`
			Sequencings  []struct {
				SequencingID string `json:"sequencing_id"`
			} `json:"sequencings"`
		} `json:"patients"`
	}](body)
	if err != nil {
		return payload, false, fmt.Errorf("Failed to unmarshal qlin creation response: %q", err)
	}
	for i := range payload.Patients {
		for _, responded := range created.Patients {
			if payload.Patients[i].FamilyMember != responded.FamilyMember {
				continue
			}
			payload.Patients[i].AnalysisID = created.AnalysisID
			payload.Patients[i].PatientID = responded.PatientID
			if len(responded.Sequencings) > 0 {
				payload.Patients[i].SequencingID = responded.Sequencings[0].SequencingID
			}
		}
	}
	return payload, true, nil
}

// SequencingPayload is the body of POST /api/v1/analysis/sequencings.
type SequencingPayload struct {
	Sequencings []QLINSequencing `json:"sequencings"`
}

type QLINSequencing struct {
	SequencingID string         `json:"sequencing_id"`
	Resequencing bool           `json:"resequencing"`
	LaboratoryID string         `json:"laboratory_id"`
	Sample       string         `json:"sample"`
	Specimen     string         `json:"specimen"`
	SpecimenCode string         `json:"specimen_code"`
	SampleCode   string         `json:"sample_code"`
	Aliquot      string         `json:"aliquot"`
	Files        []QLINFile     `json:"files"`
	Experiment   QLINExperiment `json:"experiment"`
	Workflow     QLINWorkflow   `json:"workflow"`
}

type QLINFile struct {
	Type   string `json:"type"`
	Format string `json:"format"`
	Path   string `json:"path"`
}

type QLINExperiment struct {
	Platform             string `json:"platform"`
	Sequencer            string `json:"sequencer"`
	RunName              string `json:"run_name"`
	RunDate              string `json:"run_date"`
	RunAlias             string `json:"run_alias"`
	FlowcellID           string `json:"flowcell_id"`
	IsPairedEnd          bool   `json:"is_paired_end"`
	FragmentSize         int    `json:"fragment_size"`
	ExperimentalStrategy string `json:"experimental_strategy"`
	CaptureKit           string `json:"capture_kit"`
	BaitDefinition       string `json:"bait_definition"`
	Protocol             string `json:"protocol"`
}

type QLINWorkflow struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	GenomeBuild string `json:"genome_build"`
}

// RunName is a long-form run id, e.g. "250620_A00516_0688_AHGYCYDSXF",
// decomposed into the fields QLIN's experiment block wants.
type RunName struct {
	Name      string
	Date      string
	Sequencer string
	RunAlias  string
	Flowcell  string
}

var runNameRe = regexp.MustCompile(`^(.*)_(.*)_(.*)_(.*)$`)

// ParseRunName splits a long-form run id and expands its yymmdd date.
func ParseRunName(run string) (RunName, error) {
	m := runNameRe.FindStringSubmatch(run)
	if m == nil {
		return RunName{}, fmt.Errorf("run id '%s' is not in the long 'date_sequencer_run_flowcell' form", run)
	}
	date := m[1]
	if len(date) < 6 {
		return RunName{}, fmt.Errorf("run id '%s' has no parsable date", run)
	}
	year := date[:2]
	if len(year) == 2 {
		year = "20" + year
	}
	return RunName{
		Name:      run,
		Date:      year + "-" + date[2:4] + "-" + date[4:6],
		Sequencer: m[2],
		RunAlias:  m[3],
		Flowcell:  m[4],
	}, nil
}

// BuildGermlineSequencings derives the sequencing payload from a created
// analysis payload: one sequencing per patient, pointing at the DRAGEN
// germline outputs laid out under /{run}_germinal/{aliquot}.
func BuildGermlineSequencings(run RunName, payload AnalysisPayload) SequencingPayload {
	var out SequencingPayload
	for _, patient := range payload.Patients {
		prefix := "/" + run.Name + "_germinal/" + patient.Aliquot
		files := []QLINFile{
			{"ALIR", "CRAM", prefix + ".cram"},
			{"ALIR", "CRAI", prefix + ".cram.crai"},
			{"SNV", "VCF", prefix + ".hard-filtered.gvcf.gz"},
			{"SNV", "TBI", prefix + ".hard-filtered.gvcf.gz.tbi"},
			{"GCNV", "VCF", prefix + ".cnv.vcf.gz"},
			{"GCNV", "TBI", prefix + ".cnv.vcf.gz.tbi"},
			{"GSV", "VCF", prefix + ".sv.vcf.gz"},
			{"GSV", "TBI", prefix + ".sv.vcf.gz.tbi"},
			{"SSUP", "TGZ", prefix + ".extra.tgz"},
			{"IGV", "BW", prefix + ".seg.bw"},
			{"IGV", "BW", prefix + ".hard-filtered.baf.bw"},
			{"IGV", "BED", prefix + ".KAPA_HyperExome_hg38_combined_targets.bed"},
			{"CNVVIS", "PNG", prefix + ".cnv.calls.png"},
			{"COVGENE", "CSV", prefix + ".coverage_by_gene.GENCODE_CODING_CANONICAL.csv"},
			{"QCRUN", "JSON", prefix + ".QC_report.json"},
		}
		if patient.FamilyMember == "PROBAND" {
			files = append(files,
				QLINFile{"NORM_VEP", "VCF", prefix + ".hard-filtered.formatted.norm.VEP.vcf.gz"},
				QLINFile{"NORM_VEP", "TBI", prefix + ".hard-filtered.formatted.norm.VEP.vcf.gz.tbi"},
			)
			if patient.OrganizationID == "CHUSJ" {
				files = append(files,
					QLINFile{"EXOMISER", "HTML", prefix + ".exomiser.html"},
					QLINFile{"EXOMISER", "JSON", prefix + ".exomiser.json"},
					QLINFile{"EXOMISER", "TSV", prefix + ".exomiser.variants.tsv"},
				)
			}
		}
		out.Sequencings = append(out.Sequencings, QLINSequencing{
			SequencingID: patient.SequencingID,
			LaboratoryID: patient.LaboratoryID,
			Sample:       patient.Sample,
			Specimen:     patient.Specimen,
			SpecimenCode: "NBL",
			SampleCode:   "DNA",
			Aliquot:      patient.Aliquot,
			Files:        files,
			Experiment: QLINExperiment{
				Platform:             "Illumina",
				Sequencer:            run.Sequencer,
				RunName:              run.Name,
				RunDate:              run.Date,
				RunAlias:             run.RunAlias,
				FlowcellID:           run.Flowcell,
				IsPairedEnd:          true,
				FragmentSize:         100,
				ExperimentalStrategy: "WXS",
				CaptureKit:           "RocheKapaHyperExome",
				BaitDefinition:       "KAPA_HyperExome_hg38_capture_targets",
				Protocol:             "HyperPrep",
			},
			Workflow: QLINWorkflow{Name: "Dragen", Version: "4.2.4", GenomeBuild: "GRCh38"},
		})
	}
	return out
}

// CreateSequencings links the DRAGEN outputs to the patients created by
// CreateAnalysis.
func (q *QLINService) CreateSequencings(ctx context.Context, payload SequencingPayload) error {
	body, status, err := q.post(ctx, "/api/v1/analysis/sequencings?validate-only=false", payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("qlin sequencing creation returned %d: %s", status, body)
	}
	return nil
}

func (q *QLINService) post(ctx context.Context, endpoint string, payload any) ([]byte, int, error) {
	token, err := q.authenticate(ctx)
	if err != nil {
		return nil, 0, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("Failed to marshal qlin payload: %q", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.server+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("Failed to reach qlin at '%s': %q", endpoint, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("Failed to read qlin response: %q", err)
	}
	return respBody, resp.StatusCode, nil
}

func (q *QLINService) authenticate(ctx context.Context) (string, error) {
	if q.token != "" {
		return q.token, nil
	}
	form := url.Values{}
	form.Set("email", q.email)
	form.Set("password", q.password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.server+"/api/v1/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Failed to log into qlin: %q", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("qlin login returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Failed to read qlin login response: %q", err)
	}
	auth, err := UnmarshalT[struct {
		Token string `json:"token"`
	}](body)
	if err != nil {
		return "", fmt.Errorf("Failed to unmarshal qlin login response: %q", err)
	}
	q.token = auth.Token
	return q.token, nil
}
