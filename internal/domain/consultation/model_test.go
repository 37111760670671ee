package consultation

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		hasContent, confirmed bool
		want                  string
	}{
		{true, false, StateContent},
		{true, true, StateEdited},
		{false, true, StateOmitted},
		{false, false, StateUnresolved},
	}
	for _, tc := range cases {
		if got := Resolve(tc.hasContent, tc.confirmed); got != tc.want {
			t.Errorf("Resolve(%v, %v) = %q, want %q", tc.hasContent, tc.confirmed, got, tc.want)
		}
	}
}

func TestResolution_FreshConsultationAllUnresolved(t *testing.T) {
	c := &Consultation{Status: StatusInProgress}
	for name, state := range c.Resolution() {
		if state != StateUnresolved {
			t.Errorf("section %s: expected unresolved, got %q", name, state)
		}
	}
	if got := c.Unresolved(); len(got) != len(SectionNames) {
		t.Errorf("expected all %d sections unresolved, got %v", len(SectionNames), got)
	}
}

func TestResolution_ContentAndConfirmations(t *testing.T) {
	c := &Consultation{
		Sections: Sections{
			Diagnosis:    &DiagnosisSection{Text: "Acute pharyngitis"},
			Prescription: &PrescriptionSection{Items: []PrescriptionItem{{Medicine: "Amoxicillin", Quantity: 21}}},
		},
		ConfirmedOmissions: []string{SectionExams, SectionReferrals, SectionNursing, SectionSignature, SectionPrescription},
	}
	res := c.Resolution()
	if res[SectionDiagnosis] != StateContent {
		t.Errorf("diagnosis: %q", res[SectionDiagnosis])
	}
	// Confirmed omitted but later filled in: edited, not omitted.
	if res[SectionPrescription] != StateEdited {
		t.Errorf("prescription: expected edited, got %q", res[SectionPrescription])
	}
	if res[SectionExams] != StateOmitted {
		t.Errorf("exams: %q", res[SectionExams])
	}

	if got := c.Unresolved(); len(got) != 0 {
		t.Errorf("nothing should be unresolved, got %v", got)
	}
	// Only the still-empty confirmed sections count as omitted.
	want := []string{SectionExams, SectionReferrals, SectionNursing, SectionSignature}
	if got := c.Omitted(); !reflect.DeepEqual(got, want) {
		t.Errorf("omitted = %v, want %v", got, want)
	}
}

func TestSectionEmptiness(t *testing.T) {
	var s Sections
	for _, name := range SectionNames[:5] {
		if s.HasContent(name) {
			t.Errorf("empty sections claimed content for %s", name)
		}
	}
	s.Exams = &ExamsSection{Notes: "fasting"}
	if s.HasContent(SectionExams) {
		t.Error("notes alone do not make the exams section non-empty")
	}
	s.Exams.Names = []string{"CBC"}
	if !s.HasContent(SectionExams) {
		t.Error("named exam should count as content")
	}
}

func TestSignatureSectionContent(t *testing.T) {
	c := &Consultation{}
	if c.hasContent(SectionSignature) {
		t.Error("unsigned consultation should have no signature content")
	}
	c.Signature = &SignatureRecord{Mode: SignatureManual, SignerName: "Dr. Vargas"}
	if !c.hasContent(SectionSignature) {
		t.Error("signature record should count as content")
	}
}
