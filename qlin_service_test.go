package sequencing_run_gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeFamilyMember(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Proband", "PROBAND"},
		{"Père", "FATHER"},
		{"Mère", "MOTHER"},
		{"MTH", "MOTHER"},
		{"FTH", "FATHER"},
		{"Frère", "BRO"},
		{"Soeur", "SIS"},
		{"PROBAND", "PROBAND"},
	}
	for _, tt := range tests {
		if got := NormalizeFamilyMember(tt.in); got != tt.want {
			t.Errorf("NormalizeFamilyMember(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeSex(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Mâle", "MALE"},
		{"Femelle", "FEMALE"},
		{"Inconnu", "UNKNOWN"},
		{"FEMALE", "FEMALE"},
	}
	for _, tt := range tests {
		if got := NormalizeSex(tt.in); got != tt.want {
			t.Errorf("NormalizeSex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBirthDate(t *testing.T) {
	t.Run("nanuq form", func(t *testing.T) {
		got, err := FormatBirthDate("18/04/2019")
		if err != nil {
			t.Fatalf("cannot format: %q", err)
		}
		if got != "2019-04-18" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("iso passes through", func(t *testing.T) {
		got, err := FormatBirthDate("2019-04-18")
		if err != nil {
			t.Fatalf("cannot format: %q", err)
		}
		if got != "2019-04-18" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("garbage is rejected", func(t *testing.T) {
		if _, err := FormatBirthDate("April 18th"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestParseRunName(t *testing.T) {
	got, err := ParseRunName("250620_A00516_0688_AHGYCYDSXF")
	if err != nil {
		t.Fatalf("cannot parse run name: %q", err)
	}
	want := RunName{
		Name:      "250620_A00516_0688_AHGYCYDSXF",
		Date:      "2025-06-20",
		Sequencer: "A00516",
		RunAlias:  "0688",
		Flowcell:  "AHGYCYDSXF",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v want %v", got, want)
	}

	t.Run("short form is rejected", func(t *testing.T) {
		if _, err := ParseRunName("A00516_0688"); err == nil {
			t.Error("expected an error")
		}
	})
}

func testFamily(t *testing.T) []AnalysisMember {
	t.Helper()
	samples, err := UnmarshalT[[]NanuqSample]([]byte(NanuqSampleJSON))
	if err != nil {
		t.Fatalf("cannot unmarshal sample: %q", err)
	}
	proband := samples[0]
	mother := proband
	mother.LabAliquotID = "25480"
	mother.LDMSampleID = "GM251235"
	mother.Patient.FamilyMember = "Mère"
	mother.Patient.Sex = "Femelle"
	mother.Patient.Status = "UNF"
	mother.Patient.BirthDate = "01/01/1980"
	return []AnalysisMember{
		{Sample: proband, HPO: "HP:0001250;HP:0001561"},
		{Sample: mother},
	}
}

func TestBuildAnalysisPayload(t *testing.T) {
	members := testFamily(t)

	payload, err := BuildAnalysisPayload(members, false)
	if err != nil {
		t.Fatalf("cannot build payload: %q", err)
	}
	if payload.Type != "GERMLINE" {
		t.Errorf("got type %q", payload.Type)
	}
	if payload.AnalysisCode != "PRAGM" {
		t.Errorf("got code %q", payload.AnalysisCode)
	}
	if payload.Priority != "ROUTINE" {
		t.Errorf("got priority %q", payload.Priority)
	}
	if len(payload.Patients) != 2 {
		t.Fatalf("got %d patients want 2", len(payload.Patients))
	}

	proband := payload.Patients[0]
	if proband.FamilyMember != "PROBAND" || proband.BirthDate != "2019-04-18" {
		t.Errorf("got %v", proband)
	}
	if proband.Affected != nil || proband.Status != "" {
		t.Errorf("proband should carry no affected flag, got %v %q", proband.Affected, proband.Status)
	}
	wantSigns := []QLINSign{{Code: "HP:0001250", Observed: true}, {Code: "HP:0001561", Observed: true}}
	if proband.Clinical == nil || !reflect.DeepEqual(proband.Clinical.Signs, wantSigns) {
		t.Errorf("got %v", proband.Clinical)
	}

	mother := payload.Patients[1]
	if mother.FamilyMember != "MOTHER" || mother.Sex != "FEMALE" {
		t.Errorf("got %v", mother)
	}
	if mother.Affected == nil || *mother.Affected || mother.Status != "NOW" {
		t.Errorf("got %v %q", mother.Affected, mother.Status)
	}
	if mother.Clinical != nil {
		t.Errorf("unaffected mother should carry no signs, got %v", mother.Clinical)
	}

	t.Run("no proband", func(t *testing.T) {
		if _, err := BuildAnalysisPayload(members[1:], false); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("VEOIB panel code is renamed", func(t *testing.T) {
		veoib := testFamily(t)
		veoib[0].Sample.PanelCode = "VEOIB"
		payload, err := BuildAnalysisPayload(veoib, false)
		if err != nil {
			t.Fatalf("cannot build payload: %q", err)
		}
		if payload.AnalysisCode != "VEOIBD" {
			t.Errorf("got %q", payload.AnalysisCode)
		}
	})

	t.Run("proband without phenotypes gets the default sign", func(t *testing.T) {
		noHPO := testFamily(t)
		noHPO[0].HPO = ""
		payload, err := BuildAnalysisPayload(noHPO, false)
		if err != nil {
			t.Fatalf("cannot build payload: %q", err)
		}
		signs := payload.Patients[0].Clinical.Signs
		if len(signs) != 1 || signs[0].Code != "HP:0000005" {
			t.Errorf("got %v", signs)
		}
	})

	t.Run("fixNames strips non letters", func(t *testing.T) {
		dirty := testFamily(t)
		dirty[0].Sample.Patient.FirstName = "JEANNE*2"
		payload, err := BuildAnalysisPayload(dirty, true)
		if err != nil {
			t.Fatalf("cannot build payload: %q", err)
		}
		if payload.Patients[0].FirstName != "JEANNE" {
			t.Errorf("got %q", payload.Patients[0].FirstName)
		}
	})

	t.Run("unknown project group", func(t *testing.T) {
		unknown := testFamily(t)
		unknown[0].Sample.ProjectGroup = "RNASeq"
		if _, err := BuildAnalysisPayload(unknown, false); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestAnonymizeAnalysisPayload(t *testing.T) {
	payload, err := BuildAnalysisPayload(testFamily(t), false)
	if err != nil {
		t.Fatalf("cannot build payload: %q", err)
	}
	anon := AnonymizeAnalysisPayload(payload)
	proband := anon.Patients[0]
	if proband.MRN == "03421069" || len(proband.MRN) != 8 {
		t.Errorf("got MRN %q", proband.MRN)
	}
	if proband.FirstName == "JEANNE" || proband.LastName == "TREMBLAY" {
		t.Errorf("got %q %q", proband.FirstName, proband.LastName)
	}
	if !strings.HasSuffix(proband.JHN, "19041812") {
		t.Errorf("got JHN %q, the date part should survive", proband.JHN)
	}
	if proband.JHN == "TREJ19041812" {
		t.Error("JHN initials were not scrambled")
	}
}

func TestBuildGermlineSequencings(t *testing.T) {
	payload, err := BuildAnalysisPayload(testFamily(t), false)
	if err != nil {
		t.Fatalf("cannot build payload: %q", err)
	}
	for i := range payload.Patients {
		payload.Patients[i].SequencingID = "seq" + payload.Patients[i].Aliquot
	}
	run, err := ParseRunName("250620_A00516_0688_AHGYCYDSXF")
	if err != nil {
		t.Fatalf("cannot parse run name: %q", err)
	}

	sequencings := BuildGermlineSequencings(run, payload)
	if len(sequencings.Sequencings) != 2 {
		t.Fatalf("got %d sequencings want 2", len(sequencings.Sequencings))
	}

	proband := sequencings.Sequencings[0]
	if proband.SequencingID != "seq25479" || proband.Aliquot != "25479" {
		t.Errorf("got %v", proband)
	}
	// 15 germline files, plus NORM_VEP (2) and the CHUSJ exomiser trio (3)
	if len(proband.Files) != 20 {
		t.Errorf("got %d proband files want 20", len(proband.Files))
	}
	wantCram := QLINFile{"ALIR", "CRAM", "/250620_A00516_0688_AHGYCYDSXF_germinal/25479.cram"}
	if proband.Files[0] != wantCram {
		t.Errorf("got %v want %v", proband.Files[0], wantCram)
	}
	if proband.Experiment.Sequencer != "A00516" || proband.Experiment.RunDate != "2025-06-20" || proband.Experiment.FlowcellID != "AHGYCYDSXF" {
		t.Errorf("got %v", proband.Experiment)
	}
	if proband.Workflow != (QLINWorkflow{Name: "Dragen", Version: "4.2.4", GenomeBuild: "GRCh38"}) {
		t.Errorf("got %v", proband.Workflow)
	}

	mother := sequencings.Sequencings[1]
	if len(mother.Files) != 15 {
		t.Errorf("got %d mother files want 15", len(mother.Files))
	}
}

func TestQLINService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/auth/login":
			if r.PostFormValue("email") != "user@cqgc.ca" || r.PostFormValue("password") != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"token": "qlintoken"}`))
		case r.URL.Path == "/api/v1/analysis":
			if r.Header.Get("Authorization") != "Bearer qlintoken" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.URL.Query().Get("validate-only") == "true" {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{
				"analysis_id": "an1",
				"patients": [
					{"family_member": "PROBAND", "patient_id": "pa1", "sequencings": [{"sequencing_id": "sq1"}]},
					{"family_member": "MOTHER", "patient_id": "pa2", "sequencings": [{"sequencing_id": "sq2"}]}
				]
			}`))
		case r.URL.Path == "/api/v1/analysis/sequencings":
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	qlin := NewQLINService(server.URL, "user@cqgc.ca", "pw")
	ctx := context.Background()

	payload, err := BuildAnalysisPayload(testFamily(t), false)
	if err != nil {
		t.Fatalf("cannot build payload: %q", err)
	}

	t.Run("CreateAnalysis dry run", func(t *testing.T) {
		_, created, err := qlin.CreateAnalysis(ctx, payload, true)
		if err != nil {
			t.Fatalf("cannot CreateAnalysis: %q", err)
		}
		if created {
			t.Error("a dry run should not create anything")
		}
	})

	t.Run("CreateAnalysis merges the assigned ids", func(t *testing.T) {
		got, created, err := qlin.CreateAnalysis(ctx, payload, false)
		if err != nil {
			t.Fatalf("cannot CreateAnalysis: %q", err)
		}
		if !created {
			t.Fatal("expected a creation")
		}
		proband := got.Patients[0]
		if proband.AnalysisID != "an1" || proband.PatientID != "pa1" || proband.SequencingID != "sq1" {
			t.Errorf("got %v", proband)
		}
		mother := got.Patients[1]
		if mother.PatientID != "pa2" || mother.SequencingID != "sq2" {
			t.Errorf("got %v", mother)
		}
	})

	t.Run("CreateSequencings", func(t *testing.T) {
		run, err := ParseRunName("250620_A00516_0688_AHGYCYDSXF")
		if err != nil {
			t.Fatalf("cannot parse run name: %q", err)
		}
		if err := qlin.CreateSequencings(ctx, BuildGermlineSequencings(run, payload)); err != nil {
			t.Fatalf("cannot CreateSequencings: %q", err)
		}
	})
}
