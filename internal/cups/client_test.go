package cups

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/phin1x/go-ipp"

	"github.com/orrn/printdesk/internal/core"
)

type fakeIPP struct {
	printed   []ipp.Document
	body      []byte
	attrs     map[string]interface{}
	printErr  error
	cancelled []int
	failures  int
	printer   ipp.Attributes
}

func (f *fakeIPP) PrintJob(doc ipp.Document, printer string, jobAttributes map[string]interface{}) (int, error) {
	if f.printErr != nil {
		return 0, f.printErr
	}
	body, err := io.ReadAll(doc.Document)
	if err != nil {
		return 0, err
	}
	f.body = body
	f.printed = append(f.printed, doc)
	f.attrs = jobAttributes
	return 42, nil
}

func (f *fakeIPP) CancelJob(jobID int, purge bool) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeIPP) GetPrinterAttributes(printer string, attributes []string) (ipp.Attributes, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	return f.printer, nil
}

func testClient(f *fakeIPP) *Client {
	return newClient(f, Config{Printer: "office", Attempts: 3, Delay: time.Millisecond}, nil)
}

func TestSubmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := &fakeIPP{}
	c := testClient(f)
	ref, err := c.Submit(context.Background(), path, "0a1b2c", map[string]string{
		core.OptionCopies:       "2",
		core.OptionPrintQuality: "3",
		core.OptionNumberUp:     "1",
		core.OptionSides:        core.SidesTwoLongEdge,
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if ref != "42" {
		t.Errorf("expected reference 42, got %q", ref)
	}

	doc := f.printed[0]
	if doc.Name != "0a1b2c" || doc.MimeType != mimeTypePDF || doc.Size != len("%PDF-1.4 body") {
		t.Errorf("unexpected document %+v", doc)
	}
	if string(f.body) != "%PDF-1.4 body" {
		t.Errorf("unexpected body %q", f.body)
	}

	want := map[string]interface{}{
		"copies":        2,
		"print-quality": 3,
		"number-up":     1,
		"sides":         "two-sided-long-edge",
	}
	if !reflect.DeepEqual(f.attrs, want) {
		t.Errorf("unexpected attributes %v", f.attrs)
	}
}

func TestSubmit_Errors(t *testing.T) {
	c := testClient(&fakeIPP{})
	if _, err := c.Submit(context.Background(), "/nonexistent/doc.pdf", "x", nil); err == nil {
		t.Error("expected error for a missing document")
	}
	if _, err := c.Submit(context.Background(), "/nonexistent/doc.pdf", "x", map[string]string{core.OptionCopies: "two"}); err == nil {
		t.Error("expected error for a non-numeric copy count")
	}

	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	rejecting := testClient(&fakeIPP{printErr: errors.New("client-error-document-format-not-supported")})
	if _, err := rejecting.Submit(context.Background(), path, "x", nil); err == nil {
		t.Error("expected a rejected job to fail")
	}
}

func TestJobAttributes_Encode(t *testing.T) {
	attrs, err := jobAttributes(map[string]string{
		core.OptionCopies:         "2",
		core.OptionPrintQuality:   "3",
		core.OptionNumberUp:       "4",
		core.OptionNumberUpLayout: "lrtb",
		core.OptionSides:          core.SidesTwoShortEdge,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := ipp.NewRequest(ipp.OperationPrintJob, 1)
	req.OperationAttributes[ipp.AttributePrinterURI] = "ipp://localhost:631/printers/office"
	req.OperationAttributes[ipp.AttributeJobName] = "0a1b2c"
	req.OperationAttributes[ipp.AttributeDocumentFormat] = mimeTypePDF
	for k, v := range attrs {
		req.JobAttributes[k] = v
	}
	body, err := req.Encode()
	if err != nil {
		t.Fatalf("request cannot be encoded: %v", err)
	}
	for _, want := range []string{"sides", "two-sided-short-edge", "number-up-layout", "lrtb"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("encoded request lacks %q", want)
		}
	}
}

func TestJobAttributes_RejectsPageRanges(t *testing.T) {
	_, err := jobAttributes(map[string]string{core.OptionPageRanges: "1-3,5"})
	if !errors.Is(err, ErrPageRanges) {
		t.Errorf("expected ErrPageRanges, got %v", err)
	}
}

func TestCancel_Retries(t *testing.T) {
	f := &fakeIPP{failures: 2}
	c := testClient(f)
	if err := c.Cancel(context.Background(), "42", true); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !reflect.DeepEqual(f.cancelled, []int{42}) {
		t.Errorf("unexpected cancellations %v", f.cancelled)
	}

	if err := c.Cancel(context.Background(), "not-a-number", true); err == nil {
		t.Error("expected error for a non-numeric reference")
	}
}

func TestCapabilities(t *testing.T) {
	f := &fakeIPP{
		failures: 1,
		printer: ipp.Attributes{
			attrPrinterName:       {{Name: attrPrinterName, Value: "Office-Laser"}},
			attrPrinterState:      {{Name: attrPrinterState, Value: 3}},
			attrNumberUpSupported: {{Value: 1}, {Value: 2}, {Value: 4}, {Value: 6}, {Value: 9}, {Value: 16}},
			attrCopiesSupported:   {{Value: []int{1, 50}}},
		},
	}
	caps, err := testClient(f).Capabilities(context.Background())
	if err != nil {
		t.Fatalf("capabilities failed: %v", err)
	}
	want := core.Capabilities{
		Name:      "Office-Laser",
		State:     "idle",
		NumberUp:  []int{1, 2, 4, 6, 9, 16},
		MaxCopies: 50,
	}
	if !reflect.DeepEqual(caps, want) {
		t.Errorf("expected %+v, got %+v", want, caps)
	}
}

func TestCapabilities_GivesUp(t *testing.T) {
	f := &fakeIPP{failures: 10}
	if _, err := testClient(f).Capabilities(context.Background()); err == nil {
		t.Error("expected error after exhausting attempts")
	}
}

func TestNewClient_RequiresPrinter(t *testing.T) {
	if _, err := NewClient(Config{Host: "localhost"}, nil); !errors.Is(err, ErrNoPrinter) {
		t.Errorf("expected ErrNoPrinter, got %v", err)
	}
}
