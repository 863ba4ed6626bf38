package sequencing_run_gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// CaseService ties the collaborators together: for a finished run it walks
// the samples Nanuq knows about, groups them into families, and submits one
// Emedgene case and one QLIN analysis per family.
type CaseService struct {
	nanuq      *NanuqService
	phenotips  *PhenotipsService
	basespace  *BaseSpaceService
	emedgene   *EmedgeneService
	qlin       *QLINService
	archive    *AWSS3Service
	caseBucket string
}

// NewCaseService wires the collaborators. archive may be nil when no case
// bucket is configured; submitted case payloads are then not archived.
func NewCaseService(nanuq *NanuqService, phenotips *PhenotipsService, basespace *BaseSpaceService, emedgene *EmedgeneService, qlin *QLINService, archive *AWSS3Service, caseBucket string) *CaseService {
	return &CaseService{nanuq: nanuq, phenotips: phenotips, basespace: basespace, emedgene: emedgene, qlin: qlin, archive: archive, caseBucket: caseBucket}
}

// CollectFamilies fetches the clinical record of every biosample of a run
// and groups the records by family id. Biosamples Nanuq does not know about
// are logged and skipped, they are usually controls.
func (c *CaseService) CollectFamilies(ctx context.Context, run string) (map[string][]NanuqSample, error) {
	content, err := c.nanuq.GetSampleNames(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("Failed to get sample names for run '%s': %q", run, err)
	}
	biosamples := ParseSampleNames(content)

	families := map[string][]NanuqSample{}
	for _, biosample := range biosamples {
		samples, err := c.nanuq.GetSample(ctx, biosample)
		if err != nil {
			return nil, fmt.Errorf("Failed to get clinical info for '%s': %q", biosample, err)
		}
		if len(samples) == 0 {
			log.Printf("No clinical record for biosample %s, skipping", biosample)
			continue
		}
		sample := samples[0]
		families[sample.Patient.FamilyID] = append(families[sample.Patient.FamilyID], sample)
	}
	return families, nil
}

// probandHPOTerms looks up the proband's observed phenotypes in Phenotips by
// MRN. A missing Phenotips record is not fatal, the case is created without
// phenotypes.
func (c *CaseService) probandHPOTerms(ctx context.Context, sample NanuqSample) []HPOTerm {
	mrn := FormatMRNForSite(sample.Patient.EP, sample.Patient.MRN)
	patient, err := c.phenotips.GetPatientByMRN(ctx, mrn)
	if err != nil {
		log.Printf("No phenotips record for MRN %s (aliquot %s): %v", mrn, sample.LabAliquotID, err)
		return nil
	}
	return ObservedHPOTerms(patient)
}

// CreateCases submits one Emedgene case per family of the run. It returns
// the ids of the families whose case was created; a family that fails does
// not stop the others.
func (c *CaseService) CreateCases(ctx context.Context, run string, families map[string][]NanuqSample) ([]string, error) {
	created := []string{}
	var firstErr error
	for familyID, samples := range families {
		members := []CaseMember{}
		for _, sample := range samples {
			member := CaseMember{Sample: sample}
			if NormalizeFamilyMember(sample.Patient.FamilyMember) == "PROBAND" {
				member.HPOs = c.probandHPOTerms(ctx, sample)
			}
			fastqs, err := c.basespace.GetSequencedFiles(ctx, sample.LDMSampleID)
			if err != nil {
				log.Printf("No sequenced files for %s (family %s): %v", sample.LDMSampleID, familyID, err)
			}
			member.Fastqs = fastqs
			members = append(members, member)
		}
		emgCase := BuildCase(run, members)
		if _, err := c.emedgene.SubmitCase(ctx, emgCase); err != nil {
			log.Printf("Failed to create case for family %s: %v", familyID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if c.archive != nil {
			key := fmt.Sprintf("%s/%s.json", run, familyID)
			if err := c.archive.PutCase(key, c.caseBucket, emgCase); err != nil {
				log.Printf("Failed to archive case for family %s: %v", familyID, err)
			}
		}
		created = append(created, familyID)
	}
	return created, firstErr
}

// CreateAnalyses creates one QLIN analysis per family, then links the DRAGEN
// germline outputs as sequencings. run must be the long-form run id so the
// experiment block can be derived from it. With validateOnly set, payloads
// are dry-run against the server and nothing is created.
func (c *CaseService) CreateAnalyses(ctx context.Context, run string, families map[string][]NanuqSample, validateOnly bool) error {
	runName, err := ParseRunName(run)
	if err != nil {
		return err
	}
	for familyID, samples := range families {
		members := []AnalysisMember{}
		for _, sample := range samples {
			member := AnalysisMember{Sample: sample}
			if NormalizeFamilyMember(sample.Patient.FamilyMember) == "PROBAND" {
				codes := []string{}
				for _, term := range c.probandHPOTerms(ctx, sample) {
					codes = append(codes, term.ID)
				}
				member.HPO = strings.Join(codes, ";")
			}
			members = append(members, member)
		}
		payload, err := BuildAnalysisPayload(members, true)
		if err != nil {
			return fmt.Errorf("Failed to build analysis for family '%s': %q", familyID, err)
		}
		payload, createdAnalysis, err := c.qlin.CreateAnalysis(ctx, payload, validateOnly)
		if err != nil {
			return fmt.Errorf("Failed to create analysis for family '%s': %q", familyID, err)
		}
		if !createdAnalysis {
			continue
		}
		sequencings := BuildGermlineSequencings(runName, payload)
		if err := c.qlin.CreateSequencings(ctx, sequencings); err != nil {
			return fmt.Errorf("Failed to create sequencings for family '%s': %q", familyID, err)
		}
	}
	return nil
}

// ProcessRun is the end-to-end flow for one finished run: collect the
// families, create the Emedgene cases, then the QLIN analyses.
func (c *CaseService) ProcessRun(ctx context.Context, run string, validateOnly bool) error {
	families, err := c.CollectFamilies(ctx, run)
	if err != nil {
		return err
	}
	created, err := c.CreateCases(ctx, run, families)
	if err != nil {
		return fmt.Errorf("Failed to create every case for run '%s' (%d of %d families done): %q",
			run, len(created), len(families), err)
	}
	log.Printf("Created %d cases for run %s", len(created), run)
	return c.CreateAnalyses(ctx, run, families, validateOnly)
}
