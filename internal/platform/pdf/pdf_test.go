package pdf

import (
	"bytes"
	"testing"
	"time"
)

func testHeader() Header {
	return Header{
		ClinicName:  "Clinerva",
		PatientName: "Maria Gomez",
		BillingCode: "BC-10422",
		DoctorName:  "Dr. Elena Vargas",
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func assertPDF(t *testing.T, out []byte) {
	t.Helper()
	if len(out) == 0 {
		t.Fatal("empty output")
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output does not start with %%PDF header: %q", out[:8])
	}
}

func TestRenderPrescription_ManualSignature(t *testing.T) {
	out, err := RenderPrescription(Prescription{
		Header:    testHeader(),
		Diagnosis: "Acute pharyngitis",
		Items: []PrescriptionItem{
			{Medicine: "Amoxicillin 500mg", Quantity: 21, Duration: "7 days", Indication: "one capsule every 8 hours"},
			{Medicine: "Ibuprofen 400mg", Quantity: 10, Indication: "one tablet every 12 hours as needed"},
		},
		Signature: SignatureBlock{SignerName: "Dr. Elena Vargas"},
	})
	if err != nil {
		t.Fatal(err)
	}
	assertPDF(t, out)
}

func TestRenderPrescription_DigitalSignature(t *testing.T) {
	out, err := RenderPrescription(Prescription{
		Header: testHeader(),
		Items:  []PrescriptionItem{{Medicine: "Loratadine 10mg", Quantity: 7}},
		Signature: SignatureBlock{
			Digital:      true,
			Subject:      "CN=Dr. Elena Vargas,O=Clinerva",
			Issuer:       "CN=Clinerva CA",
			SerialNumber: "4521",
			SignedAt:     time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	assertPDF(t, out)
}

func TestRenderLabOrder(t *testing.T) {
	out, err := RenderLabOrder(LabOrder{
		Header:    testHeader(),
		Exams:     []string{"Complete blood count", "Fasting glucose"},
		Notes:     "Fasting sample required.",
		Signature: SignatureBlock{SignerName: "Dr. Elena Vargas"},
		Watermark: "COPY",
	})
	if err != nil {
		t.Fatal(err)
	}
	assertPDF(t, out)
}

func TestRenderNursingSummary(t *testing.T) {
	out, err := RenderNursingSummary(NursingSummary{
		Header:       testHeader(),
		Instructions: []string{"Apply first dose before discharge", "Check temperature every 4 hours"},
	})
	if err != nil {
		t.Fatal(err)
	}
	assertPDF(t, out)
}
