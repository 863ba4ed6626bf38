package sequencing_run_gateway

import (
	"encoding/json"
)

var SampleSheetV2Text = `[Header]
FileFormatVersion,2
RunName,A00516_0420
InstrumentPlatform,NovaSeq6000
IndexOrientation,Forward

[Reads]
Read1Cycles,151
Read2Cycles,151
Index1Cycles,10
Index2Cycles,10

[BCLConvert_Settings]
SoftwareVersion,4.1.7
FastqCompressionFormat,gzip

[BCLConvert_Data]
Lane,Sample_ID,Index,Index2,Sample_Project
1,25479,ACGTACGTAC,TGCATGCATG,PRAGMatIQ
1,25480,GGATCCAT,ATCGGATC,PRAGMatIQ
2,25481,TTGACCTGCA,AACTGGACGT,PRAGMatIQ

[Cloud_Settings]
GeneratedVersion,1.12.0

[Cloud_Data]
Sample_ID,ProjectName,LibraryName
25479,PRAGMatIQ,LIB-25479
25480,PRAGMatIQ,LIB-25480
25481,PRAGMatIQ,LIB-25481

[CQGC_Data]
Sample_ID,LibraryPrepKit,CaptureKit
25479,RocheKapaHyperExome,SureSelect
25480,Chromium10X,None
25481,RocheKapaHyperExome,SureSelect
`

var SampleSheetV1Text = `[Header]
IEMFileVersion,5
Experiment Name,A00516_0106
Date,2020-03-02
Workflow,GenerateFASTQ

[Settings]
Adapter,AGATCGGAAGAGCACACGTCTGAACTCCAGTCA
OverrideCycles,Y151;I8;I8;Y151

[Data]
Lane,Sample_ID,index,index2,Sample_Project
1,21057,ACGTACGTAC,TGCATGCATG,AOH
1,21058,GGATCCAT,ATCGGATC,AOH
`

var NanuqSampleJSON = `
[
  {
    "labAliquotId": "25479",
    "labAliquotReceptionDate": "16/05/2025",
    "ldm": "LDM-CHUSJ",
    "ldmSampleId": "GM251234",
    "ldmServiceRequestId": ".",
    "ldmSpecimenId": "ZR051234",
    "libType": "KAPA HyperExome",
    "panelCode": "PRAGM",
    "patient": {
      "birthDate": "18/04/2019",
      "ep": "CHUSJ",
      "familyId": "FAM0042",
      "familyMember": "PROBAND",
      "fetus": false,
      "firstName": "JEANNE",
      "lastName": "TREMBLAY",
      "mrn": "03421069",
      "ramq": "TREJ19041812",
      "sex": "FEMALE",
      "status": "AFF"
    },
    "priority": "ROUTINE",
    "projectGroup": "Exome_Germinal",
    "projectName": "Exome_Germinal_CHUSJ",
    "sampleType": "DNA",
    "specimenType": "NBL"
  }
]
`

var PhenotipsPatientJSON = `
{
  "id": "P0000808",
  "external_id": "CHUSJ3421069",
  "sex": "F",
  "features": [
    {"id": "HP:0001250", "label": "Seizures", "type": "phenotype", "observed": "yes"},
    {"id": "HP:0001251", "label": "Ataxia", "type": "phenotype", "observed": "no"},
    {"id": "HP:0001561", "label": "Polyhydramnios", "type": "phenotype", "observed": "yes"}
  ]
}
`

func UnmarshalT[T any](b []byte) (T, error) {
	var target T
	if err := json.Unmarshal(b, &target); err != nil {
		return target, err
	}
	return target, nil
}
