package sequencing_run_gateway

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// FormatVersion identifies which flavor of SampleSheet a document was parsed
// from. V1 sheets announce themselves with an "IEMFileVersion" header key, V2
// sheets with "FileFormatVersion". Sheets with neither stay VersionUnknown and
// version-specific operations refuse to run on them.
type FormatVersion int

const (
	VersionUnknown FormatVersion = iota
	V1
	V2
)

func (v FormatVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return "unknown"
}

var (
	ErrUnknownVersion   = errors.New("samplesheet version could not be determined")
	ErrV1CSVUnsupported = errors.New("rendering v1 samplesheets to csv is not implemented")
)

// Section names shared by the two SampleSheet flavors. V1 sheets carry
// Header, Settings and Data; V2 sheets carry the BCLConvert/Cloud sections
// plus CQGC_Data, a custom section for internal controls.
const (
	HeaderSection     = "Header"
	V1SettingsSection = "Settings"
	V1DataSection     = "Data"
	V2SettingsSection = "BCLConvert_Settings"
	V2DataSection     = "BCLConvert_Data"
	CloudDataSection  = "Cloud_Data"
	CQGCDataSection   = "CQGC_Data"
	overrideCyclesKey = "OverrideCycles"
)

// v2SectionOrder is the canonical section order for serialization.
var v2SectionOrder = []string{
	HeaderSection,
	"Reads",
	V2SettingsSection,
	V2DataSection,
	"Cloud_Settings",
	CloudDataSection,
	CQGCDataSection,
}

// dependentSections correlate to the primary sample table by sample id and
// must be filtered along with it (v2 only).
var dependentSections = []string{CloudDataSection, CQGCDataSection}

var sectionRe = regexp.MustCompile(`\[(.+)\]`)

// SampleSheet is the parsed representation of a multi-section SampleSheet.csv.
// Sections map a name such as "Header" or "BCLConvert_Data" to rows of
// comma-split fields. Key-value sections hold two-field rows; data sections
// hold a column-name row followed by one row per sample. The Header section
// always exists, possibly empty.
type SampleSheet struct {
	Version  FormatVersion
	Sections map[string][][]string
}

// NewSampleSheetFromFile reads and parses a SampleSheet.csv. No document is
// produced when the file cannot be read.
func NewSampleSheetFromFile(path string) (*SampleSheet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to read samplesheet '%s': %q", path, err)
	}
	return ParseSampleSheet(string(content)), nil
}

// ParseSampleSheet tokenizes raw samplesheet text in a single top-to-bottom
// pass. A bracketed line ("[Header]") switches the current section; every
// other line is split on commas and appended to it. Lines before any bracket
// belong to Header. Version detection happens inline while scanning Header.
func ParseSampleSheet(text string) *SampleSheet {
	sheet := &SampleSheet{
		Version:  VersionUnknown,
		Sections: map[string][][]string{HeaderSection: {}},
	}

	section := HeaderSection
	for _, line := range strings.Split(text, "\n") {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			section = m[1]
			// A repeated bracket line keeps appending to the existing
			// section, never duplicates it.
			if _, ok := sheet.Sections[section]; !ok {
				sheet.Sections[section] = [][]string{}
			}
			continue
		}
		cols := strings.Split(strings.TrimRight(line, "\r\n"), ",")
		if section == HeaderSection {
			if len(cols) != 2 {
				continue
			}
			sheet.Sections[HeaderSection] = append(sheet.Sections[HeaderSection], cols)
			switch cols[0] {
			case "IEMFileVersion":
				sheet.Version = V1
			case "FileFormatVersion":
				sheet.Version = V2
			}
		} else if len(cols) > 1 {
			sheet.Sections[section] = append(sheet.Sections[section], cols)
		}
	}
	return sheet
}

// dataSection resolves the primary sample-table name for the sheet version.
func (s *SampleSheet) dataSection() (string, error) {
	switch s.Version {
	case V1:
		return V1DataSection, nil
	case V2:
		return V2DataSection, nil
	}
	return "", ErrUnknownVersion
}

// FilterByIndexLength derives a new SampleSheet keeping only the samples
// whose index sequence (third column of the sample table) has exactly
// indexSize bases. The column-name row is always kept. For v2 sheets the
// Cloud_Data and CQGC_Data sections are reduced to the retained sample ids.
// The receiver is left untouched; zero matching samples is not an error.
func (s *SampleSheet) FilterByIndexLength(indexSize int) (*SampleSheet, error) {
	data, err := s.dataSection()
	if err != nil {
		return nil, err
	}

	rows := s.Sections[data]
	samples := [][]string{}
	kept := map[string]bool{}
	if len(rows) > 0 {
		samples = append(samples, cloneRow(rows[0]))
		for _, row := range rows[1:] {
			// Index sequence sits at a fixed position, not resolved from
			// the column names. SampleID is the second column in both
			// versions.
			if len(row) > 2 && len(row[2]) == indexSize {
				samples = append(samples, cloneRow(row))
				kept[row[1]] = true
			}
		}
	}

	filtered := s.clone()
	filtered.Sections[data] = samples

	if s.Version == V2 {
		for _, section := range dependentSections {
			deps, ok := s.Sections[section]
			if !ok {
				continue
			}
			subset := [][]string{}
			if len(deps) > 0 {
				subset = append(subset, cloneRow(deps[0]))
				for _, row := range deps[1:] {
					if len(row) > 0 && kept[row[0]] {
						subset = append(subset, cloneRow(row))
					}
				}
			}
			filtered.Sections[section] = subset
		}
	}
	return filtered, nil
}

// AddBaseMask records the cycle mask (e.g. "Y101;I8N2;I8N2;Y101") in the
// settings section appropriate to the sheet version and returns that
// section's rows. Unlike FilterByIndexLength this mutates the receiver.
// On v1 sheets an existing OverrideCycles value is replaced in place; when no
// such row exists nothing is added, which is asymmetric with v2 but matches
// the historical behavior downstream scripts rely on. On v2 sheets a new row
// is appended unconditionally, so calling twice yields two rows.
func (s *SampleSheet) AddBaseMask(baseMask string) ([][]string, error) {
	switch s.Version {
	case V1:
		for _, setting := range s.Sections[V1SettingsSection] {
			if len(setting) > 1 && setting[0] == overrideCyclesKey {
				setting[1] = baseMask
			}
		}
		return s.Sections[V1SettingsSection], nil
	case V2:
		s.Sections[V2SettingsSection] = append(s.Sections[V2SettingsSection], []string{overrideCyclesKey, baseMask})
		return s.Sections[V2SettingsSection], nil
	}
	return nil, ErrUnknownVersion
}

// ToCSV renders the sheet back to its canonical text form. Only v2 sheets
// can be serialized; sections are emitted in canonical order, sections the
// sheet does not carry are skipped, and fields are rejoined with bare commas
// (the format has no quoting or escaping).
func (s *SampleSheet) ToCSV() (string, error) {
	switch s.Version {
	case V2:
	case V1:
		return "", ErrV1CSVUnsupported
	default:
		return "", ErrUnknownVersion
	}

	var b strings.Builder
	for _, section := range v2SectionOrder {
		rows, ok := s.Sections[section]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", section)
		for _, row := range rows {
			b.WriteString(strings.Join(row, ","))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// WriteCSV serializes the sheet and writes it to path.
func (s *SampleSheet) WriteCSV(path string) error {
	content, err := s.ToCSV()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("Failed to write samplesheet '%s': %q", path, err)
	}
	return nil
}

func (s *SampleSheet) clone() *SampleSheet {
	sections := make(map[string][][]string, len(s.Sections))
	for name, rows := range s.Sections {
		copied := make([][]string, 0, len(rows))
		for _, row := range rows {
			copied = append(copied, cloneRow(row))
		}
		sections[name] = copied
	}
	return &SampleSheet{Version: s.Version, Sections: sections}
}

func cloneRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}
